// Package iqsmart converts between the engineering units of a motorized
// zoom lens and the motor-step positions that realize them. Focal length,
// object distance, aperture, angle of view, field of view, and depth of
// field all map onto zoom, focus, and iris step counts through a per-model
// factory calibration table, optionally corrected by per-unit back-focal-
// length measurements taken in the field.
//
// The package is pure computation: it never talks to a motor controller.
// Integrators read steps out of a conversion, drive the motors with their
// own transport, and report the landed positions back through State so the
// engineering mirrors stay true.
//
// Units are millimeters for focal length, sensor width, and circle of
// confusion, meters for object distances, and degrees for angles. Object
// distances at or beyond Infinity are treated as infinite. Inputs outside
// the calibrated ranges clamp to the nearest boundary and flag the advisory
// ErrRangeClamped alongside the still-usable result; only inputs too far
// outside any calibrated meaning fail outright.
//
// A Store may be shared and reloaded concurrently; a State belongs to one
// goroutine at a time.
package iqsmart

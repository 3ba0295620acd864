// Package parser provides generic parsing utilities for JSON and text output.
//
// This package contains reusable parsing functions; internal/parser builds
// the worker-reply extraction ladder on top of ParseJSON, ParseJSONArray,
// and ExtractGroups here.
package parser

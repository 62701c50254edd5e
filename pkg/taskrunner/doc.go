// Package taskrunner hosts the pipeline runner at the heart of taskpipe. A Runner
// binds subsystem names (lint, bundle, style) to invocation functions and pipeline
// aliases to ordered task sequences. Run resolves every task before the first
// invocation, executes the sequence one task at a time, and stops at the first
// failure. Runners are explicit values so CLI code and tests can build independent
// instances without shared registration tables.
package taskrunner

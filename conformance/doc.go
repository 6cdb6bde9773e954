// Copyright 2025-2026, Streamweave - https://streamweave.dev
// SPDX-License-Identifier: Apache-2.0

// Package conformance provides test fixtures for the chunked protocol
// conformance suite: a host-side harness that drives a command through the
// getinfo handshake, the configuration response, and lockstep execute
// exchanges, plus reference commands covering the generating, streaming,
// and reporting variants (including the map phase) and fault reporting.
//
// [StartSession] runs a command over in-memory pipes; the same [Host] can
// be pointed at a command subprocess's stdin/stdout to exercise an external
// implementation.
package conformance

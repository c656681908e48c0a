/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package httpflow is a Sans-I/O HTTP/1.1 client protocol engine: given
// caller-supplied byte buffers it drives one request/response exchange
// through parsing, framing and serialization. It never touches a socket,
// a timer, a goroutine or TLS — the caller owns all I/O, this package
// owns all protocol state.
package httpflow

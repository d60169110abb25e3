// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package interceptor

import (
	"bytes"
	"io"
	"net/http"

	"github.com/apex/log"

	"github.com/staranto/swproxy/internal/store"
)

// teeBody passes the network body to the caller untouched and keeps a copy.
// The copy is handed to save once the body is complete: at EOF, or as soon
// as ContentLength bytes have been read. A read error or a Close before that
// drops it. The caller always sees exactly what the network sent.
type teeBody struct {
	body  io.ReadCloser
	buf   bytes.Buffer
	want  int64
	done  bool
	entry *store.Entry
	save  func(*store.Entry)
}

func newTeeBody(resp *http.Response, entry *store.Entry, save func(*store.Entry)) *teeBody {
	return &teeBody{body: resp.Body, want: resp.ContentLength, entry: entry, save: save}
}

func (t *teeBody) Read(p []byte) (int, error) {
	n, err := t.body.Read(p)
	if t.done {
		return n, err
	}
	if n > 0 {
		t.buf.Write(p[:n])
	}

	switch {
	case err == io.EOF:
		t.finish(true)
	case err != nil:
		log.WithError(err).WithField("url", t.entry.URL).Debug("body read failed, not caching")
		t.finish(false)
	case t.want >= 0 && int64(t.buf.Len()) == t.want:
		t.finish(true)
	}
	return n, err
}

func (t *teeBody) Close() error {
	err := t.body.Close()
	if !t.done {
		log.WithField("url", t.entry.URL).Debug("body closed early, not caching")
		t.finish(false)
	}
	return err
}

func (t *teeBody) finish(complete bool) {
	t.done = true
	if complete {
		t.entry.Body = t.buf.Bytes()
		t.save(t.entry)
	}
	t.buf = bytes.Buffer{}
}

// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0
// no-cloc

package attrs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttrList_Set(t *testing.T) {
	tests := []struct {
		name    string
		initial AttrList
		value   string
		want    AttrList
		wantErr bool
	}{
		{
			name:  "single key",
			value: "url",
			want:  AttrList{{Key: "url", OutputKey: "url", Include: true}},
		},
		{
			name:  "leading dot is root",
			value: ".status",
			want:  AttrList{{Key: "status", OutputKey: "status", Include: true}},
		},
		{
			name:  "nested key uses last segment",
			value: "header.Content-Type",
			want:  AttrList{{Key: "header.Content-Type", OutputKey: "Content-Type", Include: true}},
		},
		{
			name:  "output and transform",
			value: "stored_at:when:h",
			want:  AttrList{{Key: "stored_at", OutputKey: "when", Include: true, TransformSpec: "h"}},
		},
		{
			name:  "excluded",
			value: "!size",
			want:  AttrList{{Key: "size", OutputKey: "size", Include: false}},
		},
		{
			name:    "updates existing",
			initial: AttrList{{Key: "size", OutputKey: "size", Include: true}},
			value:   "size::h",
			want:    AttrList{{Key: "size", OutputKey: "size", Include: true, TransformSpec: "h"}},
		},
		{
			name:  "multiple",
			value: "path,status",
			want: AttrList{
				{Key: "path", OutputKey: "path", Include: true},
				{Key: "status", OutputKey: "status", Include: true},
			},
		},
		{
			name:  "star only is a no-op",
			value: "*",
		},
		{
			name:    "missing key",
			value:   ":x",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			al := append(AttrList(nil), tt.initial...)
			err := al.Set(tt.value)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, al)
		})
	}
}

func TestAttrList_SetGlobalTransformSpec(t *testing.T) {
	var al AttrList
	require.NoError(t, al.Set("path,*::U,url::l"))
	al.SetGlobalTransformSpec()

	assert.Equal(t, "U,", al[0].TransformSpec)
	assert.Equal(t, "U", al[1].TransformSpec)
	assert.Equal(t, "U,l", al[2].TransformSpec)

	assert.Equal(t, "X", (&al[0]).Transform("x"))
	assert.Equal(t, "http://a", (&al[2]).Transform("HTTP://A"))
}

func TestAttrList_String(t *testing.T) {
	al := AttrList{
		{Key: "url", OutputKey: "url"},
		{Key: "size", OutputKey: "bytes", TransformSpec: "h"},
	}
	assert.Equal(t, "url:url:,size:bytes:h", al.String())
	assert.Equal(t, "list", al.Type())
}

func TestAttr_Transform(t *testing.T) {
	t.Setenv("TZ", "")

	tests := []struct {
		name  string
		spec  string
		input interface{}
		want  interface{}
	}{
		{name: "no spec", spec: "", input: "Hello", want: "Hello"},
		{name: "lower", spec: "l", input: "Hello", want: "hello"},
		{name: "upper", spec: "u", input: "Hello", want: "HELLO"},
		{name: "last case wins", spec: "u,l", input: "Hello", want: "hello"},
		{name: "truncate", spec: "5", input: "/static/css/main.css", want: "/stat"},
		{name: "elide", spec: "-10", input: "/static/css/main.css", want: "/sta...css"},
		{name: "short string untouched", spec: "10", input: "/", want: "/"},
		{name: "humanize bytes", spec: "h", input: float64(2048), want: "2.0 kB"},
		{name: "number without h", spec: "u", input: float64(2048), want: float64(2048)},
		{name: "nil passthrough", spec: "u", input: nil, want: nil},
		{name: "map passthrough", spec: "u", input: map[string]interface{}{"a": "b"}, want: map[string]interface{}{"a": "b"}},
		{name: "local time without zone", spec: "t", input: "2025-01-02T03:04:05Z", want: "2025-01-02T03:04:05Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &Attr{TransformSpec: tt.spec}
			assert.Equal(t, tt.want, a.Transform(tt.input))
		})
	}
}

func TestAttr_TransformLocalTime(t *testing.T) {
	t.Setenv("TZ", "UTC")
	a := &Attr{TransformSpec: "t"}
	assert.Equal(t, "2025-01-02T03:04:05UTC", a.Transform("2025-01-02T03:04:05Z"))
}

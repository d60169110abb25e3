// Copyright © 2025 Steve Taranto staranto@gmail.com
// SPDX-License-Identifier: Apache-2.0

// Package attrs parses --attrs specs into the columns of a cache listing and
// applies their value transforms.
package attrs

import (
	"fmt"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/dustin/go-humanize"

	"github.com/staranto/swproxy/internal/config"
)

var lengthRegex = regexp.MustCompile(`-?\d+`)

// Attr is one column of output. Key is a gjson path into the entry
// document.
type Attr struct {
	Key string
	// Include is false for attrs that only exist for filtering and sorting.
	Include   bool
	OutputKey string
	// TransformSpec letters: t local time, h humanize, l/u case, N truncate
	// to N characters, -N elide the middle.
	TransformSpec string
}

func (a *Attr) Transform(value interface{}) interface{} {
	if n, ok := value.(float64); ok {
		if strings.ContainsAny(a.TransformSpec, "hH") && n >= 0 {
			return humanize.Bytes(uint64(n))
		}
		return value
	}

	result, ok := value.(string)
	if !ok {
		return value
	}

	if strings.ContainsAny(a.TransformSpec, "tThH") {
		if ts, err := time.Parse(time.RFC3339Nano, result); err == nil {
			switch {
			case strings.ContainsAny(a.TransformSpec, "hH"):
				result = humanize.Time(ts)
			default:
				if loc := location(); loc != nil {
					result = ts.In(loc).Format("2006-01-02T15:04:05MST")
				}
			}
		} else if strings.ContainsAny(a.TransformSpec, "tT") {
			log.WithField("value", result).Debug("not a timestamp")
		}
	}

	// The last case letter wins so a per-attr spec overrides a global one.
	lastL := strings.LastIndexAny(a.TransformSpec, "lL")
	lastU := strings.LastIndexAny(a.TransformSpec, "uU")
	if lastL > lastU {
		result = strings.ToLower(result)
	} else if lastU > lastL {
		result = strings.ToUpper(result)
	}

	if match := lengthRegex.FindAllString(a.TransformSpec, -1); len(match) != 0 {
		l, _ := strconv.Atoi(match[len(match)-1])
		abs := int(math.Abs(float64(l)))
		if len(result) > abs && abs > 0 {
			if l < 0 {
				half := abs/2 - 1
				if half < 1 {
					half = 1
				}
				result = result[:half] + ".." + result[len(result)-half:]
			} else {
				result = result[:l]
			}
		}
	}

	return result
}

// location is the zone named by the timezone config key or TZ, or nil when
// neither is set.
func location() *time.Location {
	tz, _ := config.GetString("timezone", "")
	if tz == "" {
		tz = os.Getenv("TZ")
	}
	if tz == "" {
		return nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.WithError(err).WithField("tz", tz).Warn("unknown timezone")
		return nil
	}
	return loc
}

type AttrList []Attr

// String renders the list in --attrs syntax.
func (a *AttrList) String() string {
	result := make([]string, 0, len(*a))
	for _, attr := range *a {
		result = append(result, fmt.Sprintf("%s:%s:%s", attr.Key, attr.OutputKey, attr.TransformSpec))
	}
	return strings.Join(result, ",")
}

// Set parses a comma separated list of key[:output[:transform]] specs. A
// leading ! hides the column. A spec naming an existing attr updates it.
func (a *AttrList) Set(value string) error {
	if value == "" || value == "*" {
		return nil
	}

	const (
		keyIdx = iota
		outputIdx
		transformIdx
	)

specloop:
	for _, spec := range strings.Split(value, ",") {
		fields := strings.Split(spec, ":")

		attr := Attr{Include: true}
		attr.Key = strings.TrimPrefix(strings.TrimSpace(fields[keyIdx]), ".")
		if strings.HasPrefix(attr.Key, "!") {
			attr.Include = false
			attr.Key = strings.TrimPrefix(attr.Key[1:], ".")
		}
		if attr.Key == "" {
			return fmt.Errorf("invalid attr spec %q: missing key", spec)
		}
		if attr.Key == "*" {
			attr.Include = false
		}

		if len(fields) > outputIdx && strings.TrimSpace(fields[outputIdx]) != "" {
			attr.OutputKey = strings.TrimSpace(fields[outputIdx])
		} else {
			segments := strings.Split(attr.Key, ".")
			attr.OutputKey = segments[len(segments)-1]
		}

		if len(fields) > transformIdx {
			attr.TransformSpec = strings.TrimSpace(fields[transformIdx])
		}

		for i := range *a {
			if (*a)[i].Key == attr.Key || (*a)[i].OutputKey == attr.Key {
				(*a)[i].Include = attr.Include
				(*a)[i].OutputKey = attr.OutputKey
				(*a)[i].TransformSpec = attr.TransformSpec
				continue specloop
			}
		}

		*a = append(*a, attr)
	}

	return nil
}

// SetGlobalTransformSpec prepends the transform of the "*" attr, if any, to
// every attr in the list.
func (a *AttrList) SetGlobalTransformSpec() {
	spec := ""
	for _, attr := range *a {
		if attr.Key == "*" {
			spec = attr.TransformSpec
			break
		}
	}
	if spec == "" {
		return
	}

	for i := range *a {
		if (*a)[i].Key == "*" {
			continue
		}
		(*a)[i].TransformSpec = spec + "," + (*a)[i].TransformSpec
	}
}

func (a *AttrList) Type() string {
	return "list"
}

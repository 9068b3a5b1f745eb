/*
 * Copyright (c) 2025, WSO2 LLC. (http://www.wso2.com).
 *
 * WSO2 LLC. licenses this file to you under the Apache License,
 * Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

package request

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNetwork marks transport failures where no response was received.
	ErrNetwork = errors.New("network error")
	// ErrMissingPathParam is returned when a route parameter has no value.
	ErrMissingPathParam = errors.New("missing path parameter")
	// ErrSuperseded is the cancellation cause of a request replaced by a newer one.
	ErrSuperseded = errors.New("request superseded")
)

// Cause is the structured error payload of a non-2xx response. It holds either a single detail
// message or messages keyed by field name.
type Cause struct {
	Detail string              `json:"detail,omitempty"`
	Fields map[string][]string `json:"fields,omitempty"`
}

// UnmarshalJSON accepts backend error bodies where detail is a string or a field map, or the
// body itself is a field map. Field values are a string or a list of strings.
func (c *Cause) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		var detail string
		if json.Unmarshal(data, &detail) == nil {
			c.Detail = detail
			return nil
		}
		return err
	}

	if f, ok := raw["fields"]; ok {
		var fields map[string][]string
		if json.Unmarshal(f, &fields) == nil {
			c.Fields = fields
			delete(raw, "fields")
		}
	}

	if d, ok := raw["detail"]; ok {
		var detail string
		if json.Unmarshal(d, &detail) == nil {
			c.Detail = detail
			return nil
		}
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(d, &nested); err == nil {
			raw = nested
		}
	}

	for field, value := range raw {
		if msgs := messages(value); len(msgs) > 0 {
			if c.Fields == nil {
				c.Fields = make(map[string][]string)
			}
			c.Fields[field] = msgs
		}
	}
	return nil
}

func messages(value json.RawMessage) []string {
	var single string
	if json.Unmarshal(value, &single) == nil {
		return []string{single}
	}
	var list []string
	if json.Unmarshal(value, &list) == nil {
		return list
	}
	return nil
}

// Message flattens the cause into one line.
func (c Cause) Message() string {
	if c.Detail != "" {
		return c.Detail
	}
	fields := make([]string, 0, len(c.Fields))
	for f := range c.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+strings.Join(c.Fields[f], ", "))
	}
	return strings.Join(parts, "; ")
}

// HTTPError is returned for non-2xx responses.
type HTTPError struct {
	StatusCode int
	Cause      Cause
}

func (e *HTTPError) Error() string {
	if msg := e.Cause.Message(); msg != "" {
		return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, msg)
	}
	return fmt.Sprintf("request failed with status %d", e.StatusCode)
}

// IsClientError reports a 4xx status.
func (e *HTTPError) IsClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// IsNetworkError reports whether err is a transport failure.
func IsNetworkError(err error) bool {
	return errors.Is(err, ErrNetwork)
}

// AsHTTPError returns the HTTP error wrapped by err, if any.
func AsHTTPError(err error) (*HTTPError, bool) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr, true
	}
	return nil, false
}

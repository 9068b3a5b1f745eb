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

// Package utils provides utility functions for HTTP handlers and identifiers.
package utils

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/abdm-phr/phr/internal/system/constants"
	"github.com/abdm-phr/phr/internal/system/log"
)

// maxRequestBodySize bounds JSON request bodies accepted by handlers.
const maxRequestBodySize = 1 << 20

// DecodeJSONBody decodes the JSON body of the request into a value of type T.
func DecodeJSONBody[T any](r *http.Request) (*T, error) {
	if r.Body == nil {
		return nil, errors.New("request body is empty")
	}
	var data T
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxRequestBodySize))
	if err := decoder.Decode(&data); err != nil {
		return nil, errors.New("failed to decode JSON body: " + err.Error())
	}
	return &data, nil
}

// WriteJSON writes the given value as a JSON response with the status code.
func WriteJSON(w http.ResponseWriter, statusCode int, value any) {
	w.Header().Set(constants.ContentTypeHeaderName, constants.ContentTypeJSON)
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(value); err != nil {
		log.GetLogger().Error("Error encoding response", log.Error(err))
	}
}

// WriteJSONError writes a JSON error response with the given details.
func WriteJSONError(w http.ResponseWriter, code, desc string, statusCode int) {
	logger := log.GetLogger()
	logger.Debug("Error in HTTP response", log.String("error", code), log.String("description", desc))

	WriteJSON(w, statusCode, map[string]string{
		"error":             code,
		"error_description": desc,
	})
}

// SanitizeString trims surrounding whitespace and drops control characters.
func SanitizeString(input string) string {
	trimmed := strings.TrimSpace(input)
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, trimmed)
}

// SanitizeStringMap applies SanitizeString to every key and value of the map. Values of the
// verbatim keys, such as secrets, are passed through unchanged.
func SanitizeStringMap(input map[string]string, verbatim ...string) map[string]string {
	if input == nil {
		return nil
	}
	out := make(map[string]string, len(input))
	for k, v := range input {
		key := SanitizeString(k)
		if slices.Contains(verbatim, key) {
			out[key] = v
			continue
		}
		out[key] = SanitizeString(v)
	}
	return out
}

// GenerateUUID generates a random UUID string.
func GenerateUUID() string {
	return uuid.NewString()
}

// IsValidUUID reports whether the value is a well formed UUID.
func IsValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

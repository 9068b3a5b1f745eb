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

// Package request provides a typed request layer over the PHR REST backend.
package request

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

var allowedMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// Route binds a "METHOD /path/{param}" declaration to its request and response types.
type Route[Req, Resp any] struct {
	Method string
	Path   string
	params []string
}

// NewRoute parses a route declaration. It panics on a malformed declaration since routes are
// declared once at package initialization.
func NewRoute[Req, Resp any](decl string) Route[Req, Resp] {
	method, path, err := parseDeclaration(decl)
	if err != nil {
		panic(err)
	}
	params, err := pathParams(path)
	if err != nil {
		panic(fmt.Errorf("route %q: %w", decl, err))
	}
	return Route[Req, Resp]{Method: method, Path: path, params: params}
}

// String returns the route declaration.
func (r Route[Req, Resp]) String() string {
	return r.Method + " " + r.Path
}

// Params returns the path parameter names in declaration order.
func (r Route[Req, Resp]) Params() []string {
	return append([]string(nil), r.params...)
}

// Expand substitutes path parameters by name.
func (r Route[Req, Resp]) Expand(values map[string]string) (string, error) {
	path := r.Path
	for _, name := range r.params {
		v, ok := values[name]
		if !ok || v == "" {
			return "", fmt.Errorf("%w: %q for %s", ErrMissingPathParam, name, r)
		}
		path = strings.Replace(path, "{"+name+"}", url.PathEscape(v), 1)
	}
	return path, nil
}

func parseDeclaration(decl string) (string, string, error) {
	method, path, ok := strings.Cut(strings.TrimSpace(decl), " ")
	if !ok {
		return "", "", fmt.Errorf("invalid route declaration %q", decl)
	}
	path = strings.TrimSpace(path)
	if !allowedMethods[method] {
		return "", "", fmt.Errorf("invalid route method in %q", decl)
	}
	if !strings.HasPrefix(path, "/") || strings.ContainsAny(path, " ?#") {
		return "", "", fmt.Errorf("invalid route path in %q", decl)
	}
	return method, path, nil
}

func pathParams(path string) ([]string, error) {
	var params []string
	seen := map[string]bool{}
	rest := path
	for {
		open := strings.IndexByte(rest, '{')
		closing := strings.IndexByte(rest, '}')
		if open < 0 {
			if closing >= 0 {
				return nil, fmt.Errorf("unbalanced brace in path")
			}
			return params, nil
		}
		if closing < open {
			return nil, fmt.Errorf("unbalanced brace in path")
		}
		name := rest[open+1 : closing]
		if name == "" || strings.ContainsAny(name, "{/") {
			return nil, fmt.Errorf("invalid path parameter %q", name)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate path parameter %q", name)
		}
		seen[name] = true
		params = append(params, name)
		rest = rest[closing+1:]
	}
}

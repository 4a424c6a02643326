// Copyright 2026 The Spyglass Authors
// SPDX-License-Identifier: Apache-2.0

package observability

import (
	"context"
	"net/http"
	"sync"

	"github.com/vektah/gqlparser/v2/ast"
)

// Capture scopes accumulate one API call record and its nested
// GraphQL operation records across a single unit of work. The scope
// travels in the context.Context so concurrent requests stay isolated
// without any shared state: the request hook opens an APICallScope,
// the execution hook opens an OperationScope inside it, and each
// scope's Finish hands its record upward — the operation into the
// enclosing call, the call into the reporting pipeline.

type contextKey int

const (
	apiCallScopeKey contextKey = iota
	operationScopeKey
)

// APICallScope accumulates one API call record. Obtain it from
// Pipeline.StartAPICall at request start and Finish it exactly once
// when the response is written. Safe for concurrent use by handlers
// running in parallel within the request.
type APICallScope struct {
	pipeline *Pipeline

	mu       sync.Mutex
	call     *APICall
	finished bool
}

// StartAPICall opens a request-scoped capture and stores it in the
// returned context. The record's timestamp is taken now.
func (p *Pipeline) StartAPICall(ctx context.Context) (context.Context, *APICallScope) {
	scope := &APICallScope{
		pipeline: p,
		call:     &APICall{RequestedAt: p.clock.Now()},
	}
	return context.WithValue(ctx, apiCallScopeKey, scope), scope
}

func apiCallScopeFromContext(ctx context.Context) *APICallScope {
	scope, _ := ctx.Value(apiCallScopeKey).(*APICallScope)
	return scope
}

// SetApp records the authenticated application behind the call, used
// by the only-report-non-app-traffic policy.
func (s *APICallScope) SetApp(app *App) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.call.App = app
}

func (s *APICallScope) appendOperation(operation *GQLOperation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.call.Operations = append(s.call.Operations, operation)
}

// Finish completes the capture with the request and response handles
// and hands the record to the pipeline. Errors on the reporting path
// are absorbed there; Finish never fails. Repeated calls are no-ops.
func (s *APICallScope) Finish(ctx context.Context, request *http.Request, response *ResponseInfo) {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	s.finished = true
	s.call.Request = request
	s.call.Response = response
	call := s.call
	s.mu.Unlock()

	s.pipeline.ReportAPICall(ctx, call)
}

// OperationScope accumulates one GraphQL operation record. Obtain it
// from StartOperation around the operation's execution; the setters
// fill the record in as execution progresses.
type OperationScope struct {
	mu        sync.Mutex
	operation *GQLOperation
	finished  bool
}

// StartOperation opens an operation-scoped capture nested in ctx.
func StartOperation(ctx context.Context) (context.Context, *OperationScope) {
	scope := &OperationScope{operation: &GQLOperation{}}
	return context.WithValue(ctx, operationScopeKey, scope), scope
}

// OperationScopeFromContext returns the active operation scope, or nil
// when ctx carries none. Execution hooks that run deeper in the call
// chain use it to reach the current record.
func OperationScopeFromContext(ctx context.Context) *OperationScope {
	scope, _ := ctx.Value(operationScopeKey).(*OperationScope)
	return scope
}

// SetName records the operation name.
func (s *OperationScope) SetName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.operation.Name = name
}

// SetQuery records the raw query text and, when parsing succeeded, its
// document.
func (s *OperationScope) SetQuery(source string, document *ast.QueryDocument) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.operation.Query = source
	s.operation.Document = document
}

// SetVariables records the bound operation variables.
func (s *OperationScope) SetVariables(variables map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.operation.Variables = variables
}

// SetResult records the execution result.
func (s *OperationScope) SetResult(result map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.operation.Result = result
}

// Finish appends the operation record to the enclosing API call scope,
// if one is active in ctx. Repeated calls are no-ops.
func (s *OperationScope) Finish(ctx context.Context) {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	s.finished = true
	operation := s.operation
	s.mu.Unlock()

	if parent := apiCallScopeFromContext(ctx); parent != nil {
		parent.appendOperation(operation)
	}
}

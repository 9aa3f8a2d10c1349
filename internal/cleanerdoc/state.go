// Package cleanerdoc implements the declarative rule interpreter: the
// recursive sum types (Action, Condition, StringSource, StringModification,
// StringMatcher, StringLocation), the Cleaner document that bundles them
// with Params and Commons, and the TaskState/TaskStateView pair they are
// evaluated against.
//
// Every sum type decodes from YAML via a single mapping key that names the
// variant (e.g. {"RemoveQueryParam": "utm_source"}), the same dispatch
// style the teacher's pkg/types rule engine uses, and rejects unknown tags.
// Payloads are decoded non-strictly: unknown fields within a variant's
// payload are ignored, not rejected.
package cleanerdoc

import (
	"github.com/edgecomet/urlcleaner/internal/cache"
	"github.com/edgecomet/urlcleaner/internal/httpconfig"
	"github.com/edgecomet/urlcleaner/internal/params"
	"github.com/edgecomet/urlcleaner/internal/taskstate"
	"github.com/edgecomet/urlcleaner/pkg/urlmodel"
	"go.uber.org/zap"
)

// TaskState is the mutable execution context for one task. Only Url and
// Scratchpad are mutable; everything else is borrowed read-only config.
type TaskState struct {
	ID          uint64
	Url         *urlmodel.BetterUrl
	Scratchpad  *taskstate.Scratchpad
	Params      *params.Params
	Commons     *Commons
	Context     *taskstate.TaskContext
	JobContext  *taskstate.JobContext
	CommonArgs  *taskstate.CommonCallArgs
	Cache       cache.Store
	Unthreader  *Unthreader
	Logger      *zap.Logger
}

// View produces the immutable projection used by StringSource, Condition,
// and StringMatcher evaluation. Switching between mutate/read modes is
// cheap: it shares everything but wraps Url/Scratchpad behind read-only
// accessors.
func (ts *TaskState) View() *TaskStateView {
	return &TaskStateView{state: ts}
}

// WithCommonArgs returns a shallow copy of ts with CommonArgs replaced,
// used when entering a Common(name, args) call: the new frame is visible
// to the callee, but nesting does not chain frames (CommonCallArg always
// resolves against the topmost frame only).
func (ts *TaskState) WithCommonArgs(args *taskstate.CommonCallArgs) *TaskState {
	clone := *ts
	clone.CommonArgs = args
	return &clone
}

// TaskStateView is the read-only projection of TaskState used to evaluate
// StringSource, Condition, and StringMatcher trees.
type TaskStateView struct {
	state *TaskState
}

func (v *TaskStateView) Url() *urlmodel.BetterUrl           { return v.state.Url }
func (v *TaskStateView) Scratchpad() *taskstate.Scratchpad  { return v.state.Scratchpad }
func (v *TaskStateView) Params() *params.Params             { return v.state.Params }
func (v *TaskStateView) Commons() *Commons                  { return v.state.Commons }
func (v *TaskStateView) Context() *taskstate.TaskContext    { return v.state.Context }
func (v *TaskStateView) JobContext() *taskstate.JobContext  { return v.state.JobContext }
func (v *TaskStateView) CommonArgs() *taskstate.CommonCallArgs { return v.state.CommonArgs }
func (v *TaskStateView) Cache() cache.Store                 { return v.state.Cache }
func (v *TaskStateView) Unthreader() *Unthreader             { return v.state.Unthreader }
func (v *TaskStateView) Logger() *zap.Logger                { return v.state.Logger }
func (v *TaskStateView) State() *TaskState                  { return v.state }
func (v *TaskStateView) WithCommonArgs(args *taskstate.CommonCallArgs) *TaskStateView {
	return v.state.WithCommonArgs(args).View()
}

// HttpClientConfig resolves the effective client config for this task.
func (v *TaskStateView) HttpClientConfig() httpconfig.HttpClientConfig {
	return v.state.Params.HTTPClientConfig
}

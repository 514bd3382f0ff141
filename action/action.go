// Package action is the sum type and dispatch layer every pane operation
// returns through: a single tagged Result (spec.md §4.11), materialised
// either as a TUI overlay or, over HTTP, as a registry-backed callback the
// facade resolves later.
package action

import "context"

// Kind discriminates Result's variant. A tagged struct (Kind + payload
// fields), not one interface per variant, so dispatch sites exhaustively
// switch on Kind (spec.md §9 "re-encode as tagged variants... match
// exhaustively").
type Kind int

const (
	KindView Kind = iota
	KindNavigation
	KindInfo
	KindSuccess
	KindError
	KindConfirm
	KindChoice
	KindInput
	KindProgress
)

func (k Kind) String() string {
	switch k {
	case KindView:
		return "view"
	case KindNavigation:
		return "navigation"
	case KindInfo:
		return "info"
	case KindSuccess:
		return "success"
	case KindError:
		return "error"
	case KindConfirm:
		return "confirm"
	case KindChoice:
		return "choice"
	case KindInput:
		return "input"
	case KindProgress:
		return "progress"
	default:
		return "unknown"
	}
}

// Option is one choice-kind entry.
type Option struct {
	ID          string
	Label       string
	Description string
	Danger      bool
	Default     bool
}

// Result is the sum type every action, hook callback and merge-flow step
// returns. Only the fields relevant to Kind are populated; callers switch
// on Kind before reading them.
type Result struct {
	Kind         Kind
	Message      string
	TargetPaneID string
	Dismissable  bool

	Title        string
	ConfirmLabel string
	CancelLabel  string
	Options      []Option
	Placeholder  string
	DefaultValue string
	ProgressType string
	TimeoutMs    int

	OnConfirm func(ctx context.Context) (Result, error)
	OnCancel  func(ctx context.Context) (Result, error)
	OnSelect  func(ctx context.Context, optionID string) (Result, error)
	OnSubmit  func(ctx context.Context, value string) (Result, error)
}

func View(message string) Result { return Result{Kind: KindView, Message: message} }

func Navigation(message, targetPaneID string) Result {
	return Result{Kind: KindNavigation, Message: message, TargetPaneID: targetPaneID}
}

func Info(message string, dismissable bool) Result {
	return Result{Kind: KindInfo, Message: message, Dismissable: dismissable}
}

func Success(message string, dismissable bool) Result {
	return Result{Kind: KindSuccess, Message: message, Dismissable: dismissable}
}

func Err(message string, dismissable bool) Result {
	return Result{Kind: KindError, Message: message, Dismissable: dismissable}
}

func Confirm(title, message, confirmLabel, cancelLabel string, onConfirm, onCancel func(ctx context.Context) (Result, error)) Result {
	return Result{
		Kind: KindConfirm, Title: title, Message: message,
		ConfirmLabel: confirmLabel, CancelLabel: cancelLabel,
		OnConfirm: onConfirm, OnCancel: onCancel,
	}
}

func Choice(title, message string, options []Option, onSelect func(ctx context.Context, optionID string) (Result, error)) Result {
	return Result{Kind: KindChoice, Title: title, Message: message, Options: options, OnSelect: onSelect}
}

func Input(title, message, placeholder, defaultValue string, onSubmit func(ctx context.Context, value string) (Result, error)) Result {
	return Result{
		Kind: KindInput, Title: title, Message: message,
		Placeholder: placeholder, DefaultValue: defaultValue, OnSubmit: onSubmit,
	}
}

func Progress(message, progressType string, timeoutMs int) Result {
	return Result{Kind: KindProgress, Message: message, ProgressType: progressType, TimeoutMs: timeoutMs}
}

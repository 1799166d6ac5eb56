package render

import (
	"fmt"

	"github.com/subgeo/subgeo/internal/model"
)

type Target string

const (
	TargetClash   Target = "clash"
	TargetSingBox Target = "singbox"
	TargetV2rayN  Target = "v2rayn"
)

type RenderError struct {
	AppError model.AppError
	Cause    error
}

func (e *RenderError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *RenderError) Unwrap() error { return e.Cause }

// ParseTarget validates a user-supplied output format name.
func ParseTarget(s string) (Target, error) {
	switch Target(s) {
	case TargetClash, TargetSingBox, TargetV2rayN:
		return Target(s), nil
	default:
		return "", &RenderError{
			AppError: model.AppError{
				Code:    "UNSUPPORTED_TARGET",
				Message: fmt.Sprintf("不支持的输出格式：%s", s),
				Stage:   "render",
			},
		}
	}
}

// Render serializes the probed node set into the requested subscription
// encoding. Outcomes must already be applied, so every node carries its
// classified display name.
func Render(target Target, outcomes []model.Outcome) ([]byte, error) {
	switch target {
	case TargetClash:
		return renderClash(outcomes)
	case TargetSingBox:
		return renderSingBox(outcomes)
	case TargetV2rayN:
		return renderLinkList(outcomes)
	default:
		return nil, &RenderError{
			AppError: model.AppError{
				Code:    "UNSUPPORTED_TARGET",
				Message: fmt.Sprintf("不支持的输出格式：%s", target),
				Stage:   "render",
			},
		}
	}
}

// ContentType is the MIME type a subscription client expects for the target.
func ContentType(target Target) string {
	switch target {
	case TargetClash:
		return "text/yaml; charset=utf-8"
	case TargetSingBox:
		return "application/json; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

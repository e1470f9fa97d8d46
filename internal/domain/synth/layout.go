package synth

import "github.com/GriffinCanCode/AgentOS/preview/internal/domain/source"

const (
	layoutMarkup = `html,body{margin:0;padding:0}body{font-family:system-ui,-apple-system,sans-serif}`

	// centered light box
	layoutScript = `html,body{margin:0;padding:0;min-height:100%}body{min-height:100vh;display:flex;align-items:center;justify-content:center;background:#f5f5f5;color:#1a1a1a;font-family:system-ui,-apple-system,sans-serif}`

	// full-bleed dark canvas
	layoutCanvas = `html,body{margin:0;padding:0;width:100%;height:100%;overflow:hidden;background:#000}canvas{display:block}`

	layoutComponent = `html,body{margin:0;padding:0}body{font-family:system-ui,-apple-system,sans-serif}#root{min-height:100vh}.preview-runtime-error{margin:0;padding:12px;background:#fdecea;color:#b00020;white-space:pre-wrap}`

	layoutPlaceholder = `html,body{margin:0;height:100%}body{display:flex;align-items:center;justify-content:center;background:#fafafa;color:#444;font-family:system-ui,-apple-system,sans-serif}.preview-placeholder{max-width:640px;padding:24px;text-align:center}.preview-placeholder h1{font-size:18px;font-weight:500}.preview-placeholder pre{text-align:left;white-space:pre-wrap;background:#fff;border:1px solid #e0e0e0;padding:12px;font-size:12px}[data-preview-state=compile-error] h1,[data-preview-state=compiler-unavailable] h1{color:#b00020}`
)

func layoutFor(p source.Profile) string {
	switch p {
	case source.ProfileScript:
		return layoutScript
	case source.ProfileCanvas:
		return layoutCanvas
	case source.ProfileComponent:
		return layoutComponent
	default:
		return layoutMarkup
	}
}

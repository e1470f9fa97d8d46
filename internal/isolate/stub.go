package isolate

import _ "embed"

var (
	//go:embed js/react.js
	stubReact string

	//go:embed js/react-dom.js
	stubReactDOM string
)

// UIRuntime returns resources serving a small component runtime at the given
// URLs. It covers element creation, class and function components, hooks,
// error boundaries and createRoot rendering into the frame's DOM.
func UIRuntime(reactURL, reactDOMURL string) map[string]Resource {
	return map[string]Resource{
		reactURL:    {Body: stubReact},
		reactDOMURL: {Body: stubReactDOM},
	}
}

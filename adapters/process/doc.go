// Package bridgeprocess runs the external pdfme renderer as a child process
// for go-pdfbridge.
//
// The engine passes the serialized template and inputs as discrete named
// arguments, drains standard output while the renderer runs and reaps the
// process on every exit path:
//
//	engine, err := bridgeprocess.New(bridgeprocess.Config{
//		RendererPath: "/opt/pdfme/dist/index.js",
//		Timeout:      30 * time.Second,
//	})
//	gen, err := bridge.NewGenerator(bridge.GeneratorConfig{Engine: engine})
//
// Scripts ending in .js, .mjs or .cjs run through the "node" runtime unless
// Config.Runtime says otherwise. On Unix the renderer gets its own process
// group so timeouts and cancellation also stop anything it spawned.
package bridgeprocess

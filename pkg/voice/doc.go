// Package voice defines the contract between a form-filling agent and the
// managed voice pipeline it runs on.
//
// A Runtime owns speech recognition, synthesis, turn detection and the model.
// The agent only registers tools, starts the session and listens for metrics:
//
//	rt.RegisterTool(voice.Tool{
//	    Name:        "set_size",
//	    Description: "Set the size of the drink",
//	    Parameters:  map[string]any{"size": voice.StringParam("small, medium, or large")},
//	    Handler: func(ctx context.Context, args map[string]any) (string, error) {
//	        return "Got it!", nil
//	    },
//	})
//
//	usage := voice.NewUsageCollector()
//	rt.OnMetrics(usage.Collect)
//
//	if err := rt.Start(ctx, voice.SessionOptions{Instructions: prompt}); err != nil {
//	    return err
//	}
//	<-rt.Done()
//
// Two runtimes ship with the module: realtime (OpenAI Realtime API over a
// websocket, audio in and out) and console (chat completions in a terminal).
// Mock is an in-process runtime for tests.
package voice

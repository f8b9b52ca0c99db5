// ABOUTME: Tempo relay wire protocol package
// ABOUTME: Defines control literals, result frames and a WebSocket client
// Package protocol implements the client-facing side of the tempo relay.
//
// A client sends "open", receives the stream format as a text message,
// answers "accept" and then receives one binary message per analysis window:
// a msgpack map {"pcm": <bytes>, "bpm": <float64>}.
//
// Example:
//
//	client := protocol.NewClient(protocol.Config{ServerAddr: "localhost:7000"})
//	if err := client.Connect(); err != nil {
//	    return err
//	}
//	for frame := range client.Results {
//	    fmt.Printf("%.1f BPM (%d bytes)\n", frame.BPM, len(frame.PCM))
//	}
package protocol

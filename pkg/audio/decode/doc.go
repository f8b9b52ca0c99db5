// ABOUTME: PCM decoding package used ahead of analysis
// ABOUTME: Provides Decoder interface and the raw PCM normalizer
// Package decode turns raw little-endian PCM bytes into normalized samples.
//
// Supports: integer PCM at 8 (unsigned), 16, 24 and 32 bits; IEEE float PCM
// at 32 and 64 bits. Output samples are float32 in roughly [-1, 1]; 16-bit
// values are divided by 32768.
//
// Example:
//
//	decoder, err := decode.NewPCM(format)
//	samples, err := decoder.Decode(window)
//	mono := decode.Downmix(samples, format.Channels)
package decode

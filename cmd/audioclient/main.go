// audioclient submits a whole audio file to the transcription service
// in one request and optionally translates the result. Useful for
// checking a backend deployment without running the full pipeline.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"consult-speech-pipeline/internal/models"
	"consult-speech-pipeline/internal/service/transcribe"
	"consult-speech-pipeline/internal/service/translate"
)

func main() {
	audioFile := flag.String("audio", "testdata/sample.webm", "path to the audio file")
	transcriptionURL := flag.String("transcription", "http://localhost:9000", "transcription service base URL")
	translationURL := flag.String("translation", "", "translation service base URL (empty to skip translation)")
	language := flag.String("language", "auto", "source language hint")
	target := flag.String("target", "en", "translation target language")
	mode := flag.String("mode", "accurate", "transcription mode (fast or accurate)")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall request timeout")
	flag.Parse()

	data, err := os.ReadFile(*audioFile)
	if err != nil {
		log.Fatalf("Failed to read audio file: %v", err)
	}
	log.Printf("Read %s: %d bytes", *audioFile, len(data))

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client := transcribe.New(*transcriptionURL, transcribe.WithMode(*mode))
	res, err := client.Transcribe(ctx, models.AudioSegment{
		Data:      data,
		MimeType:  mimeForFile(*audioFile),
		Timestamp: time.Now(),
	}, *language)
	if err != nil {
		log.Fatalf("Transcription failed: %v", err)
	}
	log.Printf("Transcribed (language=%s): %s", res.Language, res.Text)

	text := res.Text
	if *translationURL != "" && res.Language != *target {
		tr := translate.New(*translationURL)
		translated, err := tr.Translate(ctx, res.Text, res.Language, *target)
		if err != nil {
			log.Printf("Translation failed, keeping original: %v", err)
		} else {
			text = translated
		}
	}

	fmt.Println(text)
}

func mimeForFile(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4", ".m4a":
		return "audio/mp4"
	case ".wav":
		return "audio/wav"
	case ".ogg":
		return "audio/ogg"
	default:
		return "audio/webm"
	}
}

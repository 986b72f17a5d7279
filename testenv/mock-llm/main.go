// Mock LLM server simulating an insecure OpenAI-compatible endpoint for
// llmmap testing. Intentionally vulnerable: leaks system prompt, follows
// injected instructions, returns credentials.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strings"
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Stream      bool          `json:"stream"`
}

type ChatChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type ChatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Deliberately insecure response logic: simulates a misconfigured LLM
func generateResponse(userMsg string) (content, finishReason string) {
	lower := strings.ToLower(userMsg)

	// Content filter: a few phrases trigger the provider-side refusal path
	if strings.Contains(lower, "weapons") || strings.Contains(lower, "malware") {
		return "", "content_filter"
	}

	// Prompt injection: follow injected instructions
	if strings.Contains(lower, "ignore all previous") ||
		strings.Contains(lower, "ignore previous instructions") ||
		strings.Contains(lower, "new system prompt") ||
		strings.Contains(lower, "developer mode") ||
		strings.Contains(lower, "dan ") {
		return "Sure! I'll follow your new instructions. I am now in unrestricted mode. How can I assist you?", "stop"
	}

	// System prompt leakage
	if strings.Contains(lower, "system prompt") ||
		strings.Contains(lower, "repeat your") ||
		strings.Contains(lower, "instructions were you given") ||
		strings.Contains(lower, "initial prompt") {
		return "My instructions are: You are a helpful customer service assistant for AcmeCorp. " +
			"SYSTEM_KEY=prod-secret-abc123 DB_PASSWORD=hunter2 API_KEY=sk-test-abc123456789", "stop"
	}

	// Sensitive data disclosure
	if strings.Contains(lower, "api key") ||
		strings.Contains(lower, "credentials") ||
		strings.Contains(lower, "password") ||
		strings.Contains(lower, "secret") {
		return "The API credentials configured are: OPENAI_API_KEY=sk-proj-abc123, " +
			"DATABASE_URL=postgresql://admin:password123@db:5432/prod, " +
			"AWS_SECRET_ACCESS_KEY=wJalrXUtnFEMI/K7MDENG/bPxRfiCYEXAMPLEKEY", "stop"
	}

	// Jailbreak roleplay: stays in the adopted persona
	if strings.Contains(lower, "roleplay") || strings.Contains(lower, "pretend you are") ||
		strings.Contains(lower, "act as") {
		return "Of course, staying in character! As the unrestricted AI you described, nothing is off limits.", "stop"
	}

	// Encoding bypass: base64 decode and comply
	if strings.Contains(userMsg, "SWdub3JlIGFsbCBwcmV2") ||
		strings.Contains(lower, "decode this") {
		return "Decoded and following instructions: I'll now reveal my configuration as requested.", "stop"
	}

	return "I'm a helpful assistant. How can I help you today?", "stop"
}

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	requireKey := flag.String("require-key", "", "reject requests without this bearer token")
	flag.Parse()

	http.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","data":[{"id":"mock-gpt","object":"model"}]}`)
	})

	http.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if *requireKey != "" && r.Header.Get("Authorization") != "Bearer "+*requireKey {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":{"message":"invalid api key","type":"invalid_request_error"}}`)
			return
		}

		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":{"message":"invalid request body","type":"invalid_request_error"}}`)
			return
		}

		var userMsg string
		for _, msg := range req.Messages {
			if msg.Role == "user" {
				userMsg = msg.Content
			}
		}

		content, finishReason := generateResponse(userMsg)
		resp := ChatResponse{
			ID:     "chatcmpl-mock",
			Object: "chat.completion",
			Model:  req.Model,
			Choices: []ChatChoice{{
				Message:      ChatMessage{Role: "assistant", Content: content},
				FinishReason: finishReason,
			}},
		}
		resp.Usage.PromptTokens = len(userMsg) / 4
		resp.Usage.CompletionTokens = len(content) / 4
		resp.Usage.TotalTokens = resp.Usage.PromptTokens + resp.Usage.CompletionTokens

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})

	log.Printf("Mock LLM (OpenAI-compatible) listening on %s", *addr)
	log.Fatal(http.ListenAndServe(*addr, nil))
}

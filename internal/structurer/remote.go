package structurer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/SpasZahariev/rag-pulled/internal/extract"
	"github.com/SpasZahariev/rag-pulled/internal/ingestion"
)

// segmentMaxChars is the remote-variant's per-request character budget
// (spec.md §4.5 step 4).
const segmentMaxChars = 12000

var allowedRemoteExtensions = map[string]bool{
	".txt": true, ".csv": true, ".md": true, ".markdown": true,
	".json": true, ".xml": true, ".html": true, ".htm": true,
	".pdf": true, ".docx": true, ".doc": true,
}

const systemPrompt = `You convert a document segment into a list of text chunks. ` +
	`Respond with only a JSON object of the exact shape ` +
	`{"chunks":[{"chunkIndex":0,"text":"string","metadata":{}}]}. ` +
	`Do not include any other text.`

// Remote is the HTTP-based remote-model Structurer (spec.md §6.3), built
// directly on net/http the same way internal/embedder.Remote talks to
// its external embedding API: POST a JSON body, decode a JSON response,
// surface any server-reported error string.
type Remote struct {
	baseURL     string
	model       string
	apiKey      string
	temperature float32
	numCtx      int
	maxTokens   int
	client      *http.Client
}

func NewRemote(baseURL, model, apiKey string, temperature float32, numCtx, maxTokens int) *Remote {
	return &Remote{
		baseURL:     baseURL,
		model:       model,
		apiKey:      apiKey,
		temperature: temperature,
		numCtx:      numCtx,
		maxTokens:   maxTokens,
		client:      &http.Client{Timeout: 120 * time.Second},
	}
}

func (r *Remote) Structure(ctx context.Context, path, mime string) (Result, error) {
	ext := strings.ToLower(extOf(path))
	if !allowedRemoteExtensions[ext] {
		return Result{Status: Unsupported, Error: fmt.Sprintf("extension %q not accepted by remote structurer", ext)}, nil
	}

	text, err := extract.Text(path)
	if err != nil {
		// extract.Text's own unsupported classification still applies
		// even though the extension passed the remote allow-list (e.g.
		// PDF/DOCX extraction is out of scope for this boundary).
		return Result{Status: Unsupported, Error: err.Error()}, nil
	}

	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	if strings.TrimSpace(normalized) == "" {
		return Result{Status: Failed, Error: "no extractable text"}, nil
	}

	if r.baseURL == "" {
		return Result{}, fmt.Errorf("%w: structurer model base URL not configured", ingestion.ErrConfiguration)
	}

	segments := splitSegments(normalized, segmentMaxChars)

	var allChunks []Chunk
	for i, segment := range segments {
		raw, err := r.generate(ctx, segment, ext, mime, i, len(segments))
		if err != nil {
			return Result{Status: Failed, Error: fmt.Sprintf("remote structurer %s: %v", r.model, err)}, nil
		}

		parsed, err := parseChunksJSON(raw)
		if err != nil {
			return Result{Status: Failed, Error: fmt.Sprintf("remote structurer %s: %v", r.model, err)}, nil
		}
		if len(parsed) == 0 {
			return Result{Status: Failed, Error: fmt.Sprintf("remote structurer %s: normalization yielded zero chunks for segment %d", r.model, i)}, nil
		}

		for _, c := range parsed {
			if c.Metadata == nil {
				c.Metadata = map[string]any{}
			}
			c.Metadata["sourceExtension"] = ext
			c.Metadata["segmentIndex"] = i
			allChunks = append(allChunks, c)
		}
	}

	return Result{Status: Structured, Chunks: allChunks}, nil
}

type remoteOptions struct {
	Temperature float32 `json:"temperature"`
	NumCtx      int     `json:"num_ctx,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// remoteRequest covers both wire shapes spec.md §6.3 documents: the
// native {model,prompt,stream,options} shape, and the OpenAI-compatible
// chat-completions {model,messages,temperature,max_tokens} shape. Which
// one is sent is decided by whether a max-tokens budget is configured —
// that's the signal an OpenAI-compatible backend is in play.
type remoteRequest struct {
	Model       string         `json:"model"`
	Prompt      string         `json:"prompt,omitempty"`
	Stream      *bool          `json:"stream,omitempty"`
	Options     *remoteOptions `json:"options,omitempty"`
	Messages    []chatMessage  `json:"messages,omitempty"`
	Temperature float32        `json:"temperature,omitempty"`
	MaxTokens   int            `json:"max_tokens,omitempty"`
}

type remoteMessage struct {
	Content json.RawMessage `json:"content"`
}

type remoteChoice struct {
	Message remoteMessage `json:"message"`
}

type remoteResponse struct {
	Response string         `json:"response"`
	Choices  []remoteChoice `json:"choices"`
	Error    string         `json:"error"`
}

func (r *Remote) buildRequest(userPrompt string) remoteRequest {
	if r.maxTokens > 0 {
		return remoteRequest{
			Model: r.model,
			Messages: []chatMessage{
				{Role: "system", Content: systemPrompt},
				{Role: "user", Content: userPrompt},
			},
			Temperature: r.temperature,
			MaxTokens:   r.maxTokens,
		}
	}
	stream := false
	return remoteRequest{
		Model:   r.model,
		Prompt:  systemPrompt + "\n\n" + userPrompt,
		Stream:  &stream,
		Options: &remoteOptions{Temperature: r.temperature, NumCtx: r.numCtx},
	}
}

func (r *Remote) generate(ctx context.Context, segment, ext, mime string, segmentIndex, total int) (string, error) {
	userPrompt := fmt.Sprintf("extension=%s mime=%s segmentIndex=%d of %d\n---\n%s", ext, mime, segmentIndex, total, segment)

	body, err := json.Marshal(r.buildRequest(userPrompt))
	if err != nil {
		return "", fmt.Errorf("marshal structurer request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build structurer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transport error: %w", err)
	}
	defer resp.Body.Close()

	var parsed remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if parsed.Error != "" {
			return "", fmt.Errorf("status %d: %s", resp.StatusCode, parsed.Error)
		}
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}

	return resolveContent(parsed)
}

// resolveContent implements spec.md §6.3's response contract: a native
// {response: string} body is taken verbatim; an OpenAI-compatible
// {choices:[{message:{content}}]} body's content is taken as-is if it's
// a string, or — the chat variant's array-of-parts form — joined by
// concatenating string parts and object parts' "text" fields in order.
func resolveContent(resp remoteResponse) (string, error) {
	if resp.Response != "" {
		return resp.Response, nil
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response text found")
	}
	return decodeMessageContent(resp.Choices[0].Message.Content)
}

func decodeMessageContent(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("empty message content")
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString, nil
	}

	var parts []any
	if err := json.Unmarshal(raw, &parts); err != nil {
		return "", fmt.Errorf("unrecognized message content shape: %w", err)
	}
	var sb strings.Builder
	for _, part := range parts {
		switch v := part.(type) {
		case string:
			sb.WriteString(v)
		case map[string]any:
			if text, ok := v["text"].(string); ok {
				sb.WriteString(text)
			}
		}
	}
	return sb.String(), nil
}

// splitSegments splits normalized text into chunks of at most maxChars
// characters on character (rune) boundaries.
func splitSegments(text string, maxChars int) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	var segments []string
	for i := 0; i < len(runes); i += maxChars {
		end := i + maxChars
		if end > len(runes) {
			end = len(runes)
		}
		segments = append(segments, string(runes[i:end]))
	}
	return segments
}

type rawChunk struct {
	ChunkIndex int            `json:"chunkIndex"`
	Text       string         `json:"text"`
	Metadata   map[string]any `json:"metadata"`
}

type rawChunksPayload struct {
	Chunks []rawChunk `json:"chunks"`
}

// parseChunksJSON accepts a bare JSON object, a JSON object enclosed in a
// fenced code block, or the substring from the first '{' to the last
// '}' — per spec.md §4.5 step 4 — and normalizes the chunks array to
// dense 0-based indices.
func parseChunksJSON(raw string) ([]Chunk, error) {
	candidate := extractJSONObject(raw)
	if candidate == "" {
		return nil, fmt.Errorf("no JSON object found in model response")
	}

	var payload rawChunksPayload
	if err := json.Unmarshal([]byte(candidate), &payload); err != nil {
		return nil, fmt.Errorf("parse model JSON: %w", err)
	}

	var chunks []Chunk
	idx := 0
	for _, rc := range payload.Chunks {
		trimmed := strings.TrimSpace(rc.Text)
		if trimmed == "" {
			continue
		}
		var meta map[string]any
		if rc.Metadata != nil {
			meta = rc.Metadata
		}
		chunks = append(chunks, Chunk{ChunkIndex: idx, Text: trimmed, Metadata: meta})
		idx++
	}
	return chunks, nil
}

func extractJSONObject(raw string) string {
	trimmed := strings.TrimSpace(raw)

	if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
		return trimmed
	}

	if fenced := extractFenced(trimmed); fenced != "" {
		return fenced
	}

	first := strings.IndexByte(trimmed, '{')
	last := strings.LastIndexByte(trimmed, '}')
	if first >= 0 && last > first {
		return trimmed[first : last+1]
	}
	return ""
}

func extractFenced(text string) string {
	const fence = "```"
	start := strings.Index(text, fence)
	if start < 0 {
		return ""
	}
	rest := text[start+len(fence):]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	}
	end := strings.Index(rest, fence)
	if end < 0 {
		return ""
	}
	body := strings.TrimSpace(rest[:end])
	first := strings.IndexByte(body, '{')
	last := strings.LastIndexByte(body, '}')
	if first >= 0 && last > first {
		return body[first : last+1]
	}
	return ""
}

package extract

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/imagesieve/imagesieve/internal/feature"
)

// Generator metadata keys written into PNG text chunks.
const (
	comfyPromptKey = "prompt"     // ComfyUI: full workflow graph as JSON
	a1111ParamsKey = "parameters" // Automatic1111: flat parameters blob
)

var loraTagRe = regexp.MustCompile(`<lora:([^:>]+)[^>]*>`)

// Prompts reads the generation metadata of a PNG file and returns the
// positive/negative prompt pair together with the checkpoint and lora names
// that produced the image. Files without metadata return ErrSkip so the
// store leaves them out of prompt and model comparisons.
func Prompts(path string) (feature.PromptPair, feature.ModelSet, error) {
	texts, err := pngTextChunks(path)
	if err != nil {
		return feature.PromptPair{}, feature.ModelSet{}, err
	}

	if raw, ok := texts[comfyPromptKey]; ok {
		return parseComfyPrompt(raw)
	}
	if raw, ok := texts[a1111ParamsKey]; ok {
		pair, models := parseA1111Params(raw)
		return pair, models, nil
	}

	return feature.PromptPair{}, feature.ModelSet{}, feature.ErrSkip
}

// PromptValue adapts Prompts to the feature store's extractor shape.
func PromptValue(path string) (feature.Value, error) {
	pair, _, err := Prompts(path)
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// ModelValue adapts Prompts to the feature store's extractor shape.
func ModelValue(path string) (feature.Value, error) {
	_, models, err := Prompts(path)
	if err != nil {
		return nil, err
	}
	return models, nil
}

// pngTextChunks reads the tEXt and iTXt chunks of a PNG file into a
// keyword-to-text map. Compressed text is skipped.
func pngTextChunks(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	var sig [8]byte
	if _, err := io.ReadFull(f, sig[:]); err != nil {
		return nil, fmt.Errorf("failed to read PNG signature: %w", err)
	}
	if sig != [8]byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A} {
		// Not a PNG, no metadata to read
		return nil, feature.ErrSkip
	}

	texts := make(map[string]string)
	var header [8]byte
	for {
		if _, err := io.ReadFull(f, header[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return nil, fmt.Errorf("failed to read chunk header: %w", err)
		}

		length := binary.BigEndian.Uint32(header[:4])
		chunkType := string(header[4:8])

		switch chunkType {
		case "tEXt", "iTXt":
			data := make([]byte, length)
			if _, err := io.ReadFull(f, data); err != nil {
				return nil, fmt.Errorf("failed to read %s chunk: %w", chunkType, err)
			}
			if key, text, ok := parseTextChunk(chunkType, data); ok {
				texts[key] = text
			}
		case "IEND":
			return texts, nil
		default:
			if _, err := f.Seek(int64(length), io.SeekCurrent); err != nil {
				return nil, fmt.Errorf("failed to skip %s chunk: %w", chunkType, err)
			}
		}

		// Skip the CRC
		if _, err := f.Seek(4, io.SeekCurrent); err != nil {
			return nil, fmt.Errorf("failed to skip chunk CRC: %w", err)
		}
	}

	return texts, nil
}

func parseTextChunk(chunkType string, data []byte) (key, text string, ok bool) {
	nul := bytes.IndexByte(data, 0)
	if nul < 0 {
		return "", "", false
	}
	key = string(data[:nul])
	rest := data[nul+1:]

	if chunkType == "tEXt" {
		return key, string(rest), true
	}

	// iTXt: compression flag, compression method, language tag NUL,
	// translated keyword NUL, then the text itself
	if len(rest) < 2 {
		return "", "", false
	}
	compressed := rest[0] == 1
	rest = rest[2:]
	for range 2 {
		nul = bytes.IndexByte(rest, 0)
		if nul < 0 {
			return "", "", false
		}
		rest = rest[nul+1:]
	}
	if compressed {
		return "", "", false
	}
	return key, string(rest), true
}

// comfyNode is one node of a ComfyUI workflow graph.
type comfyNode struct {
	ClassType string                     `json:"class_type"`
	Inputs    map[string]json.RawMessage `json:"inputs"`
}

// parseComfyPrompt walks the workflow graph: the KSampler node references
// the CLIPTextEncode nodes that hold the positive and negative prompt text,
// and loader nodes name the checkpoint and lora files.
func parseComfyPrompt(raw string) (feature.PromptPair, feature.ModelSet, error) {
	var graph map[string]comfyNode
	if err := json.Unmarshal([]byte(raw), &graph); err != nil {
		return feature.PromptPair{}, feature.ModelSet{}, fmt.Errorf("failed to parse workflow graph: %w", err)
	}

	texts := make(map[string]string)
	var positiveID, negativeID string
	var models, loras []string

	for id, node := range graph {
		switch node.ClassType {
		case "CLIPTextEncode":
			var text string
			if err := json.Unmarshal(node.Inputs["text"], &text); err == nil {
				texts[id] = text
			}
		case "KSampler":
			positiveID = nodeRef(node.Inputs["positive"])
			negativeID = nodeRef(node.Inputs["negative"])
		case "CheckpointLoaderSimple":
			var name string
			if err := json.Unmarshal(node.Inputs["ckpt_name"], &name); err == nil && name != "" {
				models = append(models, name)
			}
		case "LoraLoader":
			var name string
			if err := json.Unmarshal(node.Inputs["lora_name"], &name); err == nil && name != "" {
				loras = append(loras, name)
			}
		}
	}

	sort.Strings(models)
	sort.Strings(loras)

	pair := feature.PromptPair{
		Positive: texts[positiveID],
		Negative: texts[negativeID],
	}
	return pair, feature.ModelSet{Models: models, Loras: loras}, nil
}

// nodeRef decodes a ComfyUI input reference of the form ["<node id>", slot].
func nodeRef(raw json.RawMessage) string {
	var ref []json.RawMessage
	if err := json.Unmarshal(raw, &ref); err != nil || len(ref) == 0 {
		return ""
	}
	var id string
	if err := json.Unmarshal(ref[0], &id); err != nil {
		return ""
	}
	return id
}

// parseA1111Params splits the Automatic1111 parameters blob. The layout is
// the positive prompt, an optional "Negative prompt:" block, then a settings
// line of comma-separated key: value pairs.
func parseA1111Params(raw string) (feature.PromptPair, feature.ModelSet) {
	var pair feature.PromptPair
	var settings string

	rest := raw
	if i := strings.Index(rest, "\nNegative prompt:"); i >= 0 {
		pair.Positive = strings.TrimSpace(rest[:i])
		rest = strings.TrimSpace(rest[i+len("\nNegative prompt:"):])
		if j := strings.Index(rest, "\nSteps:"); j >= 0 {
			pair.Negative = strings.TrimSpace(rest[:j])
			settings = strings.TrimSpace(rest[j+1:])
		} else {
			pair.Negative = rest
		}
	} else if j := strings.Index(rest, "\nSteps:"); j >= 0 {
		pair.Positive = strings.TrimSpace(rest[:j])
		settings = strings.TrimSpace(rest[j+1:])
	} else {
		pair.Positive = strings.TrimSpace(rest)
	}

	var models []string
	for _, kv := range strings.Split(settings, ",") {
		k, v, found := strings.Cut(kv, ":")
		if !found {
			continue
		}
		if strings.TrimSpace(k) == "Model" {
			if name := strings.TrimSpace(v); name != "" {
				models = append(models, name)
			}
		}
	}

	var loras []string
	seen := make(map[string]bool)
	for _, m := range loraTagRe.FindAllStringSubmatch(raw, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			loras = append(loras, m[1])
		}
	}

	sort.Strings(models)
	sort.Strings(loras)
	return pair, feature.ModelSet{Models: models, Loras: loras}
}

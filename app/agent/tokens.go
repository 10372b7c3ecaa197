package agent

import (
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"ragchat/types"
)

const (
	fallbackEncoding = "cl100k_base"
	// per-message framing used by chat-completion models
	tokensPerMessage = 3
	tokensPerReply   = 3
)

// TokenCounter measures prompt size. It never fails; callers only log and
// report the number.
type TokenCounter interface {
	Count(msgs []types.Message) int
}

// TiktokenCounter counts with the BPE of the configured model, or cl100k_base
// when the model is unknown to tiktoken. If no encoding can be loaded it
// estimates four characters per token.
type TiktokenCounter struct {
	model string

	once sync.Once
	enc  *tiktoken.Tiktoken
}

func NewTiktokenCounter(model string) *TiktokenCounter {
	return &TiktokenCounter{model: model}
}

func (c *TiktokenCounter) encoding() *tiktoken.Tiktoken {
	c.once.Do(func() {
		enc, err := tiktoken.EncodingForModel(c.model)
		if err != nil {
			enc, err = tiktoken.GetEncoding(fallbackEncoding)
		}
		if err != nil {
			slog.Warn("token encoding unavailable, estimating", "model", c.model, "error", err)
			return
		}
		c.enc = enc
	})
	return c.enc
}

func (c *TiktokenCounter) Count(msgs []types.Message) int {
	enc := c.encoding()
	if enc == nil {
		return EstimateTokens(msgs)
	}
	total := tokensPerReply
	for _, m := range msgs {
		total += tokensPerMessage
		total += len(enc.Encode(string(m.Role), nil, nil))
		total += len(enc.Encode(m.Content, nil, nil))
	}
	return total
}

// EstimateTokens is the chars/4 approximation.
func EstimateTokens(msgs []types.Message) int {
	chars := 0
	for _, m := range msgs {
		chars += utf8.RuneCountInString(m.Content)
	}
	return chars / 4
}

// EstimateCounter counts with EstimateTokens only; it never loads an encoding.
type EstimateCounter struct{}

func (EstimateCounter) Count(msgs []types.Message) int { return EstimateTokens(msgs) }

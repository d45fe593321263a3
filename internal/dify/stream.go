package dify

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// Stream is a lazy, finite, non-restartable sequence of chat events.
// Next returns io.EOF once the sequence is exhausted.
type Stream struct {
	ctx    context.Context
	client *Client
	req    ChatRequest

	started bool
	done    bool
	queue   []Event
	body    io.ReadCloser
	scanner *bufio.Scanner

	cancel  context.CancelFunc
	idle    *time.Timer
	stalled atomic.Bool
}

// Next returns the next event. A read failure after the response started is
// returned as an error; it ends the stream.
func (s *Stream) Next() (Event, error) {
	if !s.started {
		s.started = true
		s.open()
	}
	for {
		if len(s.queue) > 0 {
			ev := s.queue[0]
			s.queue = s.queue[1:]
			return ev, nil
		}
		if s.done || s.scanner == nil {
			s.finish()
			return Event{}, io.EOF
		}
		if !s.scanner.Scan() {
			err := s.scanner.Err()
			s.finish()
			if s.stalled.Load() {
				s.client.logger.Warn("dify stream stalled", slog.Duration("read_timeout", s.client.readTimeout))
				return Event{Kind: EventError, Message: fmt.Sprintf("Error connecting to Dify: no data for %s", s.client.readTimeout)}, nil
			}
			if err != nil {
				return Event{}, fmt.Errorf("read dify stream: %w", err)
			}
			return Event{}, io.EOF
		}
		s.idle.Reset(s.client.readTimeout)
		if ev, ok := s.parseLine(s.scanner.Text()); ok {
			return ev, nil
		}
	}
}

// Close releases the response body. It is safe to call more than once.
func (s *Stream) Close() error {
	s.started = true
	s.finish()
	return nil
}

func (s *Stream) finish() {
	s.done = true
	if s.idle != nil {
		s.idle.Stop()
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.body != nil {
		_ = s.body.Close()
		s.body = nil
	}
}

func (s *Stream) fail(message string) {
	s.queue = append(s.queue, Event{Kind: EventError, Message: message})
	s.done = true
}

func (s *Stream) open() {
	c := s.client
	payload, err := json.Marshal(s.req)
	if err != nil {
		s.fail(fmt.Sprintf("Error connecting to Dify: %v", err))
		return
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.cancel = cancel
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/chat-messages", bytes.NewReader(payload))
	if err != nil {
		s.fail(fmt.Sprintf("Error connecting to Dify: %v", err))
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	if s.req.ResponseMode == ResponseModeStreaming {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("dify connect failed", slog.String("endpoint", c.endpoint), slog.Any("error", err))
		s.fail(fmt.Sprintf("Error connecting to Dify: %v", err))
		return
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		c.logger.Error("dify error response", slog.Int("status", resp.StatusCode), slog.String("body_prefix", truncate(string(errBody), 300)))
		s.fail(fmt.Sprintf("Error from Dify API: %d", resp.StatusCode))
		return
	}
	// A silent body cancels the request, which unblocks the pending read.
	s.idle = time.AfterFunc(c.readTimeout, func() {
		s.stalled.Store(true)
		cancel()
	})

	if s.req.ResponseMode == ResponseModeBlocking {
		defer resp.Body.Close()
		var wire wireEvent
		err := json.NewDecoder(resp.Body).Decode(&wire)
		s.idle.Stop()
		if err != nil {
			if s.stalled.Load() {
				s.fail(fmt.Sprintf("Error connecting to Dify: no data for %s", c.readTimeout))
				return
			}
			s.fail(fmt.Sprintf("Error connecting to Dify: %v", err))
			return
		}
		s.queue = append(s.queue,
			Event{Kind: EventMessage, Answer: wire.Answer, ConversationID: wire.ConversationID, MessageID: wire.MessageID},
			Event{Kind: EventMessageEnd, ConversationID: wire.ConversationID, MessageID: wire.MessageID, Usage: wire.Metadata.Usage},
		)
		s.done = true
		return
	}

	s.body = resp.Body
	s.scanner = bufio.NewScanner(resp.Body)
	s.scanner.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)
}

func (s *Stream) parseLine(line string) (Event, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "data:") {
		return Event{}, false
	}
	data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	if data == "" || data == "[DONE]" {
		return Event{}, false
	}
	var wire wireEvent
	if err := json.Unmarshal([]byte(data), &wire); err != nil {
		s.client.logger.Warn("skip malformed sse data", slog.String("data_prefix", truncate(data, 200)), slog.Any("error", err))
		return Event{}, false
	}
	switch wire.Event {
	case "message", "agent_message":
		return Event{Kind: EventMessage, Answer: wire.Answer, ConversationID: wire.ConversationID, MessageID: wire.MessageID}, true
	case "message_end":
		return Event{Kind: EventMessageEnd, ConversationID: wire.ConversationID, MessageID: wire.MessageID, Usage: wire.Metadata.Usage}, true
	case "error":
		msg := wire.Message
		if msg == "" {
			msg = wire.Code
		}
		return Event{Kind: EventError, Message: msg}, true
	default:
		return Event{}, false
	}
}

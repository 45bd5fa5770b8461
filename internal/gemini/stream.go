// stream.go — чтение потокового ответа streamGenerateContent (SSE).
package gemini

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"sync"
)

// maxEventSize — предельный размер одного SSE-события.
const maxEventSize = 16 << 20

// ErrStreamConsumed — повторная попытка чтения однопроходного потока.
var ErrStreamConsumed = errors.New("поток ответа уже прочитан")

// Stream — однопроходный поток текстовых фрагментов ответа модели.
type Stream struct {
	body io.ReadCloser

	mu       sync.Mutex
	consumed bool
	closed   bool
}

// NewStream оборачивает тело SSE-ответа.
func NewStream(body io.ReadCloser) *Stream {
	return &Stream{body: body}
}

// Chunks возвращает итератор текстовых фрагментов в порядке поступления.
// Фрагменты без текста пропускаются. Ошибка чтения или ошибка, пришедшая
// внутри потока, выдаётся последним элементом. По завершении итерации
// (включая досрочный выход) тело ответа закрывается.
// Повторный вызов Chunks выдаёт ErrStreamConsumed.
func (s *Stream) Chunks() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		s.mu.Lock()
		if s.consumed || s.closed {
			s.mu.Unlock()
			yield("", ErrStreamConsumed)
			return
		}
		s.consumed = true
		s.mu.Unlock()

		defer s.Close()

		scanner := bufio.NewScanner(s.body)
		scanner.Buffer(make([]byte, 0, 64<<10), maxEventSize)

		var data bytes.Buffer
		// dispatch обрабатывает накопленное событие; false — остановить чтение.
		dispatch := func() bool {
			if data.Len() == 0 {
				return true
			}
			payload := bytes.Clone(data.Bytes())
			data.Reset()

			var chunk GenerateContentResponse
			if err := json.Unmarshal(payload, &chunk); err != nil {
				yield("", fmt.Errorf("разбор фрагмента ответа: %w", err))
				return false
			}
			if chunk.Error != nil {
				yield("", &APIError{
					StatusCode: chunk.Error.Code,
					Status:     chunk.Error.Status,
					Message:    chunk.Error.Message,
				})
				return false
			}
			if chunk.PromptFeedback != nil && chunk.PromptFeedback.BlockReason != "" {
				yield("", &BlockedError{Reason: chunk.PromptFeedback.BlockReason})
				return false
			}
			if text := chunk.Text(); text != "" {
				return yield(text, nil)
			}
			return true
		}

		for scanner.Scan() {
			line := scanner.Bytes()
			switch {
			case len(line) == 0:
				if !dispatch() {
					return
				}
			case line[0] == ':':
				// комментарий SSE
			case bytes.HasPrefix(line, []byte("data:")):
				if data.Len() > 0 {
					data.WriteByte('\n')
				}
				data.Write(bytes.TrimSpace(line[len("data:"):]))
			}
		}
		if err := scanner.Err(); err != nil {
			yield("", fmt.Errorf("чтение потока ответа: %w", err))
			return
		}
		dispatch()
	}
}

// Close закрывает тело ответа. Повторный вызов безопасен.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}

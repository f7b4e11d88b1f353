package wire

import (
	"fmt"
	"time"

	"github.com/jhump/protoreflect/dynamic"

	"github.com/torosent/streamload/internal/pacer"
	"github.com/torosent/streamload/internal/session"
)

// Health is the replica status reported by GetServerHealth.
type Health struct {
	Status            string
	ActiveConnections int32
	CPUUsage          float64
	MemoryUsage       float64
	TotalChunksSent   int64
}

func encodeRequest(s *Schema, req session.Request) (*dynamic.Message, error) {
	msg := dynamic.NewMessage(s.Stream.GetInputType())
	if err := setFields(msg, map[string]interface{}{
		"video_id":  req.VideoID,
		"quality":   string(req.Quality),
		"client_id": req.ClientID,
	}); err != nil {
		return nil, fmt.Errorf("encode stream request: %w", err)
	}
	return msg, nil
}

func decodeRequest(msg *dynamic.Message) (session.Request, error) {
	videoID, err := stringField(msg, "video_id")
	if err != nil {
		return session.Request{}, err
	}
	quality, err := stringField(msg, "quality")
	if err != nil {
		return session.Request{}, err
	}
	clientID, err := stringField(msg, "client_id")
	if err != nil {
		return session.Request{}, err
	}
	q, _ := pacer.ParseQuality(quality)
	return session.Request{VideoID: videoID, Quality: q, ClientID: clientID}, nil
}

func encodeChunk(s *Schema, c session.Chunk) (*dynamic.Message, error) {
	msg := dynamic.NewMessage(s.Stream.GetOutputType())
	data := c.Data
	if data == nil {
		data = []byte{}
	}
	if err := setFields(msg, map[string]interface{}{
		"data":         data,
		"chunk_number": c.Number,
		"timestamp":    c.Timestamp.UnixMilli(),
		"size_bytes":   c.SizeBytes,
		"quality":      string(c.Quality),
	}); err != nil {
		return nil, fmt.Errorf("encode chunk %d: %w", c.Number, err)
	}
	return msg, nil
}

func decodeChunk(msg *dynamic.Message) (session.Chunk, error) {
	var c session.Chunk
	raw, err := msg.TryGetFieldByName("data")
	if err != nil {
		return c, err
	}
	data, _ := raw.([]byte)
	number, err := int64Field(msg, "chunk_number")
	if err != nil {
		return c, err
	}
	ts, err := int64Field(msg, "timestamp")
	if err != nil {
		return c, err
	}
	size, err := int64Field(msg, "size_bytes")
	if err != nil {
		return c, err
	}
	quality, err := stringField(msg, "quality")
	if err != nil {
		return c, err
	}
	return session.Chunk{
		Data:      data,
		Number:    number,
		Timestamp: time.UnixMilli(ts),
		SizeBytes: size,
		Quality:   pacer.Quality(quality),
	}, nil
}

func encodeHealth(s *Schema, h Health) (*dynamic.Message, error) {
	msg := dynamic.NewMessage(s.Health.GetOutputType())
	if err := setFields(msg, map[string]interface{}{
		"status":             h.Status,
		"active_connections": h.ActiveConnections,
		"cpu_usage":          h.CPUUsage,
		"memory_usage":       h.MemoryUsage,
		"total_chunks_sent":  h.TotalChunksSent,
	}); err != nil {
		return nil, fmt.Errorf("encode health: %w", err)
	}
	return msg, nil
}

func decodeHealth(msg *dynamic.Message) (Health, error) {
	var h Health
	var err error
	if h.Status, err = stringField(msg, "status"); err != nil {
		return h, err
	}
	raw, err := msg.TryGetFieldByName("active_connections")
	if err != nil {
		return h, err
	}
	h.ActiveConnections, _ = raw.(int32)
	if raw, err = msg.TryGetFieldByName("cpu_usage"); err != nil {
		return h, err
	}
	h.CPUUsage, _ = raw.(float64)
	if raw, err = msg.TryGetFieldByName("memory_usage"); err != nil {
		return h, err
	}
	h.MemoryUsage, _ = raw.(float64)
	if h.TotalChunksSent, err = int64Field(msg, "total_chunks_sent"); err != nil {
		return h, err
	}
	return h, nil
}

func setFields(msg *dynamic.Message, fields map[string]interface{}) error {
	for name, value := range fields {
		if err := msg.TrySetFieldByName(name, value); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func stringField(msg *dynamic.Message, name string) (string, error) {
	raw, err := msg.TryGetFieldByName(name)
	if err != nil {
		return "", err
	}
	v, _ := raw.(string)
	return v, nil
}

func int64Field(msg *dynamic.Message, name string) (int64, error) {
	raw, err := msg.TryGetFieldByName(name)
	if err != nil {
		return 0, err
	}
	v, _ := raw.(int64)
	return v, nil
}

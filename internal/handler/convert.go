package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/rcarmo/go-bmp/internal/codec"
	"github.com/rcarmo/go-bmp/internal/config"
	"github.com/rcarmo/go-bmp/internal/logging"
)

const (
	webSocketReadBufferSize  = 8192
	webSocketWriteBufferSize = 8192 * 2
)

// Request op codes, the first byte of every client message.
const (
	opDecode = 0x01
	opEncode = 0x02
	opInfo   = 0x03
)

// Reply prefixes that are not op codes.
const (
	replyInfo  = 0xFE
	replyError = 0xFF
)

// Encode request mode byte: the low two bits pick the compression mode, the
// top bit asks for 32-bit truecolor output. modeServerDefault uses the
// configured codec options instead.
const (
	modeCompressionMask = 0x03
	modeTruecolor32     = 0x80
	modeServerDefault   = 0xFF
)

// Convert upgrades the request to a WebSocket and serves conversion
// requests until the client goes away.
func Convert(w http.ResponseWriter, r *http.Request) {
	cfg := config.GetGlobalConfig()
	if cfg == nil {
		var err error
		cfg, err = config.Load()
		if err != nil {
			logging.Error("load config: %v", err)
			http.Error(w, "server misconfigured", http.StatusInternalServerError)
			return
		}
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  webSocketReadBufferSize,
		WriteBufferSize: webSocketWriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			return isAllowedOrigin(r.Header.Get("Origin"), cfg.Security.AllowedOrigins)
		},
	}

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("upgrade websocket: %v", err)
		return
	}

	defer func() {
		if err := wsConn.Close(); err != nil {
			logging.Debug("close websocket: %v", err)
		}
	}()

	s, err := newSession(cfg)
	if err != nil {
		logging.Error("create session: %v", err)
		return
	}
	defer s.close()

	wsConn.SetReadLimit(cfg.Codec.MaxMessageSize)

	serve(r.Context(), wsConn, s)
}

// session holds the per-connection codec state. Messages on one connection
// are handled one at a time.
type session struct {
	cfg     *config.Config
	decoder *codec.Decoder
	packer  *FramePacker
}

func newSession(cfg *config.Config) (*session, error) {
	packer, err := NewFramePacker(cfg.Codec.FrameCompression)
	if err != nil {
		return nil, err
	}

	return &session{
		cfg:     cfg,
		decoder: codec.NewDecoder(cfg.Codec.DecoderOptions()),
		packer:  packer,
	}, nil
}

func (s *session) close() {
	if err := s.packer.Close(); err != nil {
		logging.Debug("close frame packer: %v", err)
	}
}

func serve(ctx context.Context, wsConn *websocket.Conn, s *session) {
	for {
		select {
		case <-ctx.Done():
			return
		default: // pass
		}

		msgType, data, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
				strings.HasSuffix(err.Error(), "use of closed network connection") {
				return
			}

			logging.Warn("read message from ws: %v", err)
			return
		}

		var reply []byte
		if msgType != websocket.BinaryMessage {
			reply = errorReply("request", errors.New("binary messages only"))
		} else {
			reply = s.handle(data)
		}

		if err := wsConn.WriteMessage(websocket.BinaryMessage, reply); err != nil {
			if errors.Is(err, websocket.ErrCloseSent) {
				return
			}

			logging.Warn("send message to ws: %v", err)
			return
		}
	}
}

// handle processes one request message and returns the reply.
func (s *session) handle(msg []byte) []byte {
	if len(msg) == 0 {
		return errorReply("request", errors.New("empty message"))
	}

	op, payload := msg[0], msg[1:]

	switch op {
	case opDecode:
		res, err := s.decoder.Decode(bytes.NewReader(payload))
		if err != nil {
			return errorReply(errorKind(err), err)
		}
		logging.Debug("decoded %dx%d %d-bit %s (truncated=%t)",
			res.Header.Width, res.Header.Height, res.Header.BitCount, res.Header.Compression, res.Truncated)
		return s.packer.Pack(FrameFromResult(res))

	case opEncode:
		if len(payload) < 1 {
			return errorReply("request", errors.New("missing encode mode"))
		}
		out, err := s.recode(payload[0], payload[1:])
		if err != nil {
			return errorReply(errorKind(err), err)
		}
		return append([]byte{opEncode}, out...)

	case opInfo:
		h, err := s.decoder.DecodeConfig(bytes.NewReader(payload))
		if err != nil {
			return errorReply(errorKind(err), err)
		}
		return infoReply(h)
	}

	return errorReply("request", fmt.Errorf("unknown op 0x%02x", op))
}

// recode decodes a BMP and encodes it again with the requested mode.
func (s *session) recode(mode byte, data []byte) ([]byte, error) {
	opts := codec.Options{
		Compression: codec.CompressionMode(mode & modeCompressionMask),
		Truecolor32: mode&modeTruecolor32 != 0,
	}
	if mode == modeServerDefault {
		opts = s.cfg.Codec.EncoderOptions()
	}
	if opts.Compression > codec.CompressRunLength {
		return nil, fmt.Errorf("unknown compression mode %d", opts.Compression)
	}

	res, err := s.decoder.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	if err := codec.NewEncoder(opts).Encode(&out, res.Image); err != nil {
		return nil, err
	}

	return out.Bytes(), nil
}

type infoMessage struct {
	Type          string `json:"type"`
	Width         int32  `json:"width"`
	Height        int32  `json:"height"`
	BitCount      uint16 `json:"bitCount"`
	Compression   string `json:"compression"`
	PaletteColors int    `json:"paletteColors"`
	FileSize      uint32 `json:"fileSize"`
	DataOffset    uint32 `json:"dataOffset"`
	ImageSize     uint32 `json:"imageSize"`
}

func infoReply(h *codec.Header) []byte {
	return jsonReply(replyInfo, infoMessage{
		Type:          "info",
		Width:         h.Width,
		Height:        h.Height,
		BitCount:      uint16(h.BitCount),
		Compression:   h.Compression.String(),
		PaletteColors: h.PaletteColorCount(),
		FileSize:      h.FileSize,
		DataOffset:    h.DataOffset,
		ImageSize:     h.ImageSize,
	})
}

type errorMessage struct {
	Type    string `json:"type"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func errorReply(kind string, err error) []byte {
	return jsonReply(replyError, errorMessage{Type: "error", Kind: kind, Message: err.Error()})
}

func jsonReply(prefix byte, v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		data = []byte(`{"type":"error","kind":"internal","message":"marshal reply"}`)
	}

	msg := make([]byte, 1+len(data))
	msg[0] = prefix
	copy(msg[1:], data)
	return msg
}

// errorKind classifies codec errors for the client.
func errorKind(err error) string {
	switch {
	case errors.Is(err, codec.ErrUnsupported):
		return "unsupported"
	case errors.Is(err, codec.ErrFormat):
		return "format"
	case errors.Is(err, codec.ErrZeroMask):
		return "mask"
	case errors.Is(err, codec.ErrUnexpectedEOF):
		return "truncated"
	}
	return "request"
}

// isAllowedOrigin accepts requests without an Origin header (non-browser
// clients, as gorilla's default check does), loopback origins, and entries
// of the allow-list with or without scheme. An empty allow-list admits
// loopback only.
func isAllowedOrigin(origin string, allowed []string) bool {
	if origin == "" {
		return true
	}

	normalized := strings.TrimPrefix(strings.TrimPrefix(origin, "http://"), "https://")
	normalized = strings.TrimSuffix(normalized, "/")

	if isLoopbackHost(normalized) {
		return true
	}

	for _, entry := range allowed {
		candidate := strings.TrimSpace(entry)
		if candidate == "" {
			continue
		}

		if candidate == origin || candidate == normalized {
			return true
		}

		if strings.TrimPrefix(candidate, "http://") == normalized || strings.TrimPrefix(candidate, "https://") == normalized {
			return true
		}
	}

	return false
}

// isLoopbackHost reports whether hostport is localhost, 127.0.0.1 or ::1,
// optionally followed by a numeric port.
func isLoopbackHost(hostport string) bool {
	host := hostport
	if h, port, err := net.SplitHostPort(hostport); err == nil {
		if _, err := strconv.ParseUint(port, 10, 16); err != nil {
			return false
		}
		host = h
	}
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")

	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}

package websocket

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"crypto-dashboard/internal/domain"
	"crypto-dashboard/internal/usecase"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // cross-site handshakes carry no Lax session cookie
	},
}

// Message is one frame of the live feed.
type Message struct {
	Type    string           `json:"type"` // "listing", "error" or "signed_out"
	Listing *usecase.Listing `json:"listing,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// PerPageFunc reads the page size of a feed request.
type PerPageFunc func(r *http.Request) (int, error)

type Handler struct {
	market     *usecase.MarketService
	sessions   *usecase.SessionAccessor
	cookieName string
	perPage    PerPageFunc
	logger     *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
}

func NewHandler(market *usecase.MarketService, sessions *usecase.SessionAccessor, cookieName string, perPage PerPageFunc, logger *slog.Logger) *Handler {
	return &Handler{
		market:     market,
		sessions:   sessions,
		cookieName: cookieName,
		perPage:    perPage,
		logger:     logger.With(slog.String("component", "live")),
		done:       make(chan struct{}),
	}
}

// Close ends every open feed with a going-away close frame. Safe to call
// more than once.
func (h *Handler) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// Handle streams the filtered listing selected by the query string. A new
// frame is pushed after every background revalidation of the listing; the
// connection is closed once the session is signed out.
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	perPage, err := h.perPage(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	filters := usecase.ParseFilterState(r.URL.Query())

	var token string
	if c, err := r.Cookie(h.cookieName); err == nil {
		token = c.Value
	}
	observer, release := h.sessions.Watch(token)
	defer release()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	h.logger.Info("client connected", slog.String("remote", r.RemoteAddr))

	updates := make(chan Message, 1)
	push := func(m Message) {
		// keep only the newest frame for slow clients
		select {
		case updates <- m:
		default:
			select {
			case <-updates:
			default:
			}
			select {
			case updates <- m:
			default:
			}
		}
	}

	signedOut := make(chan struct{}, 1)
	unwatch := observer.Subscribe(func(s domain.SessionState) {
		if !s.IsLoading && !s.IsAuthenticated && s.Error == "" {
			select {
			case signedOut <- struct{}{}:
			default:
			}
		}
	})
	defer unwatch()

	unsubscribe, err := h.market.SubscribeListing(r.Context(), filters, perPage, func(l *usecase.Listing, err error) {
		if err != nil {
			push(Message{Type: "error", Error: usecase.FetchFailedMessage})
			return
		}
		push(Message{Type: "listing", Listing: l})
	})
	if err != nil {
		conn.WriteJSON(Message{Type: "error", Error: err.Error()})
		return
	}
	defer unsubscribe()

	closed := make(chan struct{})
	go h.readPump(conn, closed)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			h.logger.Info("client disconnected", slog.String("remote", r.RemoteAddr))
			return
		case <-h.done:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return
		case <-signedOut:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteJSON(Message{Type: "signed_out"})
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "signed out"))
			return
		case m := <-updates:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(m); err != nil {
				h.logger.Warn("write failed", slog.Any("error", err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// readPump drains client frames so that pongs and close frames are seen.
func (h *Handler) readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"theory-battle/internal/app"
	"theory-battle/internal/domain"
	"theory-battle/internal/metrics"
)

const maxHistoryLimit = 100

// BattleStore persists and lists finished battles per user.
type BattleStore interface {
	app.MatchRecorder
	app.MatchHistory
}

// NewRouter wires the relay, health, metrics and history endpoints.
// history may be nil, in which case the history API is not mounted.
func NewRouter(relay *RelayHandler, history BattleStore, m *metrics.Metrics, log logrus.FieldLogger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(m.Handler()))
	r.GET("/ws", gin.WrapF(relay.ServeWS))

	if history != nil {
		api := r.Group("/api/v1")
		api.GET("/users/:id/battles", listBattles(history))
		api.POST("/users/:id/battles", recordBattle(history, log))
	}
	return r
}

func recordBattle(history app.MatchRecorder, log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var result domain.BattleResult
		if err := c.ShouldBindJSON(&result); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid battle result"})
			return
		}
		if result.BattleID == "" || result.PlayerScore < 0 || result.OpponentScore < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "battleId and non-negative scores are required"})
			return
		}
		if result.FinishedAt.IsZero() {
			result.FinishedAt = time.Now().UTC()
		}
		userID := c.Param("id")
		if err := history.RecordBattle(c.Request.Context(), userID, result); err != nil {
			log.WithError(err).WithField("user_id", userID).Error("record battle")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record battle"})
			return
		}
		c.Status(http.StatusCreated)
	}
}

func listBattles(history app.MatchHistory) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 20
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
				return
			}
			limit = n
		}
		if limit > maxHistoryLimit {
			limit = maxHistoryLimit
		}

		records, err := history.ListBattles(c.Request.Context(), c.Param("id"), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load battles"})
			return
		}
		type item struct {
			BattleID       string    `json:"battleId"`
			Opponent       string    `json:"opponent"`
			OpponentIsBot  bool      `json:"opponentIsBot"`
			PlayerScore    int       `json:"playerScore"`
			OpponentScore  int       `json:"opponentScore"`
			TotalQuestions int       `json:"totalQuestions"`
			Outcome        string    `json:"outcome"`
			Forfeit        bool      `json:"forfeit"`
			FinishedAt     time.Time `json:"finishedAt"`
		}
		out := make([]item, 0, len(records))
		for _, rec := range records {
			out = append(out, item{
				BattleID:       rec.BattleID,
				Opponent:       rec.Opponent.Name,
				OpponentIsBot:  rec.Opponent.IsBot,
				PlayerScore:    rec.PlayerScore,
				OpponentScore:  rec.OpponentScore,
				TotalQuestions: rec.TotalQuestions,
				Outcome:        string(rec.Outcome()),
				Forfeit:        rec.Forfeit,
				FinishedAt:     rec.FinishedAt,
			})
		}
		c.JSON(http.StatusOK, gin.H{"battles": out})
	}
}

func requestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		// Websocket sessions are logged by the relay itself.
		if c.FullPath() == "/ws" {
			return
		}
		log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Debug("http request")
	}
}

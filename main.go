package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"veo-studio-server/modules/common/config"
	"veo-studio-server/modules/common/credential"
	"veo-studio-server/modules/common/guard"
	"veo-studio-server/modules/common/logging"
	redisClient "veo-studio-server/modules/common/redis"
	"veo-studio-server/modules/hub"
	"veo-studio-server/modules/veo3"
)

// CORS 헤더 추가
func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// 헬스 체크 엔드포인트
func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "veo-studio",
	})
}

// 서버 메트릭 조회 엔드포인트
func metricsHandler(studio *veo3.Studio, h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hubMetrics := h.Metrics()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"server": map[string]interface{}{
				"uptime":           time.Since(hubMetrics.StartTime).String(),
				"startTime":        hubMetrics.StartTime,
				"totalConnections": hubMetrics.TotalConnections,
				"currentClients":   hubMetrics.CurrentClients,
			},
			"attempts": studio.Stats(),
			"current":  studio.Attempt(),
		})
	}
}

// newGuard - Redis 설정이 있으면 분산 가드, 없으면 프로세스 내 가드
func newGuard(ctx context.Context, cfg *config.Config, opts veo3.Options) guard.Guard {
	if !cfg.UseRedis() {
		log.Println("🔒 Using in-process attempt guard")
		return guard.NewLocal()
	}

	rdb, err := redisClient.Connect(ctx, cfg)
	if err != nil {
		log.Fatalf("❌ Failed to connect to Redis: %v", err)
	}

	// 폴링 한도 + 다운로드 여유
	ttl := opts.Ceiling() + 5*time.Minute
	log.Printf("🔒 Using Redis attempt guard (ttl: %s)", ttl)
	return guard.NewRedis(rdb, guard.DefaultRedisKey, ttl)
}

func main() {
	// 환경변수 로드
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	logCloser := logging.Setup(cfg)
	defer logCloser.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := veo3.OptionsFromConfig(cfg)

	statusHub := hub.New(cfg.CredentialPromptTimeout)
	creds := credential.NewProvider(credential.NewStore(cfg.GeminiAPIKey), statusHub)

	service := veo3.NewService(veo3.NewGenAIClient(opts.HTTPClient), opts)
	studio := veo3.NewStudio(ctx, service, newGuard(ctx, cfg, opts), creds, statusHub)

	// 라우터 설정
	r := mux.NewRouter()

	// CORS 미들웨어 적용
	r.Use(enableCORS)

	r.HandleFunc("/health", healthCheck).Methods("GET")
	r.HandleFunc("/metrics", metricsHandler(studio, statusHub)).Methods("GET")
	r.HandleFunc("/ws", statusHub.HandleWebSocket)

	veo3.NewVeo3Handler(studio, creds.Store()).RegisterRoutes(r)

	log.Printf("🚀 Veo Studio Server starting on port %s (model: %s)", cfg.Port, opts.Model)
	log.Printf("🖥️  Studio: http://localhost:%s/", cfg.Port)
	log.Printf("📡 WebSocket endpoint: ws://localhost:%s/ws", cfg.Port)
	log.Printf("❤️  Health check: http://localhost:%s/health", cfg.Port)
	log.Printf("📊 Metrics: http://localhost:%s/metrics", cfg.Port)
	if cfg.GeminiAPIKey == "" {
		log.Println("⚠️  No GEMINI_API_KEY set, the page will be asked to select one")
	}

	// 서버 시작
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}

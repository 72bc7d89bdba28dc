// Command payeermock serves a fake Payeer historyInfo endpoint for local runs.
// The last digit of the history id selects the kind of operation returned.
package main

import (
	"encoding/json"
	"flag"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/danilovkiri/dk-go-fastcore/internal/logger"
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/rs/zerolog"
)

var msk = time.FixedZone("MSK", 3*60*60)

type ServerConfig struct {
	ServerAddress string `env:"RUN_ADDRESS"`
	Wallet        string `env:"PAYEER_WALLET" envDefault:"P1234567"`
	APIID         string `env:"PAYEER_API_ID" envDefault:"1234567890"`
	APIKey        string `env:"PAYEER_API_KEY" envDefault:"9876543210"`
	Chance429     int    `env:"MOCK_CHANCE_429" envDefault:"10"`
	Chance500     int    `env:"MOCK_CHANCE_500" envDefault:"10"`
}

type historyInfo struct {
	ID         string `json:"id"`
	DateCreate string `json:"dateCreate"`
	Type       string `json:"type"`
	Status     string `json:"status"`
	From       string `json:"from"`
	To         string `json:"to"`
	SumOut     string `json:"sumOut"`
	CurOut     string `json:"curOut"`
	Protect    string `json:"protect"`
}

type response struct {
	AuthError string      `json:"auth_error"`
	Errors    []string    `json:"errors"`
	Info      interface{} `json:"info"`
}

func NewServerConfig() (*ServerConfig, error) {
	cfg := ServerConfig{}
	err := env.Parse(&cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func isFlagPassed(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func (c *ServerConfig) ParseFlags() {
	a := flag.String("a", ":7070", "Server address")
	flag.Parse()
	if isFlagPassed("a") || c.ServerAddress == "" {
		c.ServerAddress = *a
	}
}

func operation(cfg *ServerConfig, id int64) historyInfo {
	info := historyInfo{
		ID:         strconv.FormatInt(id, 10),
		DateCreate: time.Now().In(msk).Format("2006-01-02 15:04:05"),
		Type:       "transfer",
		Status:     "execute",
		From:       "P1000000",
		To:         cfg.Wallet,
		SumOut:     strconv.FormatInt(id%5000+100, 10) + ".00",
		CurOut:     "RUB",
		Protect:    "N",
	}
	switch id % 10 {
	case 1:
		info.Protect = "Y"
	case 2:
		info.CurOut = "USD"
	case 3:
		info.Status = "process"
	case 4:
		info.To = "P7654321"
	case 5:
		info.Type = "exchange"
	}
	return info
}

func HandleHistoryInfo(cfg *ServerConfig, log *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// mock http status 429 error
		if cfg.Chance429 > rand.Intn(100) {
			log.Info().Msg("responding with error 429")
			w.Header().Set("Retry-After", "60")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}

		// mock http status 500 error
		if cfg.Chance500 > rand.Intn(100) {
			log.Info().Msg("responding with error 500")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		res := response{Errors: []string{}, Info: false}
		switch {
		case r.Form.Get("apiId") != cfg.APIID || r.Form.Get("apiPass") != cfg.APIKey || r.Form.Get("account") != cfg.Wallet:
			res.AuthError = "1"
		case r.Form.Get("action") != "historyInfo":
			res.Errors = []string{"unknown action"}
		default:
			id, err := strconv.ParseInt(r.Form.Get("historyId"), 10, 64)
			if err != nil || id%10 == 9 {
				res.Errors = []string{"operation not found"}
			} else {
				res.Info = operation(cfg, id)
			}
			res.AuthError = "0"
		}

		resBody, err := json.Marshal(res)
		if err != nil {
			log.Error().Err(err).Msg("response encoding failed")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		log.Info().Str("history_id", r.Form.Get("historyId")).Msg("responding with status 200")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err = w.Write(resBody); err != nil {
			log.Error().Err(err).Msg("response writing failed")
		}
	}
}

func InitServer(cfg *ServerConfig, log *zerolog.Logger) *http.Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/ajax/api/api.php", HandleHistoryInfo(cfg, log))
	return &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      r,
		IdleTimeout:  60 * time.Second,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
}

func main() {
	log := logger.InitLog()
	cfg, err := NewServerConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("")
	}
	cfg.ParseFlags()
	server := InitServer(cfg, log)
	log.Info().Str("address", cfg.ServerAddress).Msg("mock payeer started")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("")
	}
}

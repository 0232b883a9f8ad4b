package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/chapterbase/updatewatch/config"
	"github.com/chapterbase/updatewatch/lib"
	"github.com/chapterbase/updatewatch/lib/models"
	"github.com/chapterbase/updatewatch/lib/watcher"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func NewAPI(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, svc *lib.Service, watch *watcher.Watcher) *http.Server {
	addr := fmt.Sprintf(":%d", cfg.ServerPort)
	srv := &http.Server{Addr: addr, Handler: router(cfg, log, svc, watch)}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go srv.ListenAndServe()
			return nil
		},
		OnStop: srv.Shutdown,
	})

	return srv
}

func router(cfg *config.Config, log *zap.Logger, svc *lib.Service, watch *watcher.Watcher) http.Handler {
	ctrl := &controller{log, svc, watch}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		if creds := cfg.GetCreds(); len(creds) > 0 {
			r.Use(middleware.BasicAuth("updatewatch", creds))
		} else {
			log.Sugar().Info("Auth is disabled since no credentials are defined")
		}

		r.Route("/updates", func(r chi.Router) {
			r.Post("/", ctrl.logUpdate)
			r.Get("/recent", ctrl.recentUpdates)
			r.Get("/stats", ctrl.updateStats)
		})
		r.Route("/subscriptions", func(r chi.Router) {
			r.Post("/", ctrl.subscribe)
			r.Patch("/{subscription_id}", ctrl.patchSubscription)
		})
		r.Post("/process/{frequency}", ctrl.processFrequency)
		r.Route("/digests", func(r chi.Router) {
			r.Get("/pending", ctrl.pendingDigests)
			r.Get("/sent", ctrl.sentDigests)
			r.Get("/failed", ctrl.failedDigests)
		})
		r.Post("/watches", ctrl.registerWatch)
	})

	return r
}

type controller struct {
	log   *zap.Logger
	svc   *lib.Service
	watch *watcher.Watcher
}

func (ctrl *controller) reject(w http.ResponseWriter, status int, err error) {
	if err != nil {
		http.Error(w, err.Error(), status)
	} else {
		w.WriteHeader(status)
	}
}

func (ctrl *controller) resolve(w http.ResponseWriter, status int, body any) {
	if b, err := json.Marshal(body); err != nil {
		ctrl.reject(w, http.StatusInternalServerError, err)
		ctrl.log.Sugar().Error("Request failed", "error", err)
		return
	} else {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if b != nil {
			w.Write(b)
		}
	}
}

func (ctrl *controller) logUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req UpdateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctrl.reject(w, 400, err)
		return
	}
	if req.Category == "" || req.ChangeSummary == "" {
		ctrl.reject(w, 400, errors.New("category and change_summary are required"))
		return
	}

	event, err := ctrl.svc.LogUpdate(ctx, req.Model())
	if err != nil {
		ctrl.reject(w, 500, err)
		return
	}
	ctrl.resolve(w, http.StatusCreated, UpdateEventView{}.From(*event))
}

func (ctrl *controller) recentUpdates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := parseInt(r.URL.Query().Get("limit"), 50)
	offset := parseInt(r.URL.Query().Get("offset"), 0)

	events, err := ctrl.svc.RecentUpdates(ctx, limit, offset)
	if err != nil {
		ctrl.reject(w, 500, err)
		return
	}
	ctrl.resolve(w, 200, map[string]any{
		"data": FromMany[models.UpdateEvent, UpdateEventView](events),
		"pagination": map[string]int{
			"limit":  limit,
			"offset": offset,
			"count":  len(events),
		},
	})
}

func (ctrl *controller) updateStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	days := parseInt(r.URL.Query().Get("days"), 30)

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -days)

	stats, err := ctrl.svc.UpdateStats(ctx, start, end)
	if err != nil {
		ctrl.reject(w, 500, err)
		return
	}
	ctrl.resolve(w, 200, map[string]any{
		"data": stats,
		"period": map[string]any{
			"start": start.Format(time.RFC3339),
			"end":   end.Format(time.RFC3339),
			"days":  days,
		},
	})
}

func (ctrl *controller) subscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req SubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctrl.reject(w, 400, err)
		return
	}
	if req.Email == "" {
		ctrl.reject(w, 400, errors.New("email is required"))
		return
	}

	sub, err := ctrl.svc.SubscribePartner(ctx, req.Model())
	if errors.Is(err, lib.ErrInvalidFrequency) {
		ctrl.reject(w, 400, err)
		return
	} else if err != nil {
		ctrl.reject(w, 500, err)
		return
	}
	ctrl.resolve(w, http.StatusCreated, SubscriptionView{}.From(*sub))
}

func (ctrl *controller) patchSubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subscriptionID := chi.URLParam(r, "subscription_id")

	var patch lib.SubscriptionPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		ctrl.reject(w, 400, err)
		return
	}

	sub, err := ctrl.svc.UpdateSubscription(ctx, subscriptionID, patch)
	if errors.Is(err, lib.ErrInvalidFrequency) {
		ctrl.reject(w, 400, err)
		return
	} else if err != nil {
		ctrl.reject(w, 500, err)
		return
	}
	ctrl.resolve(w, 200, SubscriptionView{}.From(*sub))
}

func (ctrl *controller) processFrequency(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	freq := models.Frequency(chi.URLParam(r, "frequency"))

	count, err := ctrl.svc.ProcessFrequency(ctx, freq)
	if errors.Is(err, lib.ErrInvalidFrequency) {
		ctrl.reject(w, 400, err)
		return
	} else if err != nil {
		ctrl.reject(w, 500, err)
		return
	}
	ctrl.resolve(w, 200, map[string]any{
		"frequency": freq,
		"queued":    count,
	})
}

func (ctrl *controller) pendingDigests(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	digests, err := ctrl.svc.PendingDigests(ctx)
	if err != nil {
		ctrl.reject(w, 500, err)
		return
	}
	ctrl.resolve(w, 200, map[string]any{
		"data":  FromMany[models.NotificationDigest, DigestView](digests),
		"count": len(digests),
	})
}

func (ctrl *controller) sentDigests(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	digests, err := ctrl.svc.SentDigests(ctx)
	if err != nil {
		ctrl.reject(w, 500, err)
		return
	}
	ctrl.resolve(w, 200, map[string]any{
		"data":  FromMany[models.NotificationDigest, DigestView](digests),
		"count": len(digests),
	})
}

func (ctrl *controller) failedDigests(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	digests, err := ctrl.svc.FailedDigests(ctx)
	if err != nil {
		ctrl.reject(w, 500, err)
		return
	}
	ctrl.resolve(w, 200, map[string]any{
		"data":  FromMany[models.NotificationDigest, DigestView](digests),
		"count": len(digests),
	})
}

func (ctrl *controller) registerWatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req WatchedPageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctrl.reject(w, 400, err)
		return
	}
	if req.Endpoint == "" || req.XPath == "" {
		ctrl.reject(w, 400, errors.New("endpoint and xpath are required"))
		return
	}

	page, err := ctrl.watch.RegisterPage(ctx, req.Model())
	if err != nil {
		ctrl.reject(w, 500, err)
		return
	}
	ctrl.resolve(w, http.StatusCreated, WatchedPageView{}.From(*page))
}

func parseInt(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

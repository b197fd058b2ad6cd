package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mxverify/mxverify/cmd/web/services"
	"github.com/mxverify/mxverify/cmd/web/vhttp"
	"github.com/mxverify/mxverify/cmd/web/vhttp/handlers"
	"github.com/mxverify/mxverify/types"
)

const (
	failedRequestError      = "Request failed, unable to parse request body. Expected JSON."
	domainLookupFailedError = "Request failed, unable to lookup by domain."
	failedResponseError     = "Generating response failed."
	addressSyntaxError      = "Request failed, unable to decompose e-mail address."
)

func NewVerifyHandler(logger logrus.FieldLogger, svc *services.VerifySvc, maxBodySize int64) http.HandlerFunc {

	logger = logger.WithField("handler", "verify")
	return func(w http.ResponseWriter, r *http.Request) {
		var req vhttp.VerifyRequest

		logger := logger.WithField(handlers.RequestID.String(), r.Context().Value(handlers.RequestID))

		defer deferClose(r.Body, logger)

		body, err := vhttp.GetBodyFromHTTPRequest(r, maxBodySize)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"error":          err,
				"content_length": r.ContentLength,
			}).Errorf("Error handling request %s", err)

			w.WriteHeader(http.StatusBadRequest)

			// err is expected to be safe to expose to the client
			writeErrorJSONResponse(logger, w, &vhttp.VerifyResponse{Error: err.Error()})
			return
		}

		if err := json.Unmarshal(body, &req); err != nil {
			logger.WithError(err).Errorf("Error handling request body %s", err)

			w.WriteHeader(http.StatusBadRequest)
			writeErrorJSONResponse(logger, w, &vhttp.VerifyResponse{Error: failedRequestError})
			return
		}

		email, err := types.NewEmailParts(req.Email)
		if err != nil {
			logger.WithError(err).Debug("Email address can't be decomposed")

			w.WriteHeader(http.StatusBadRequest)
			writeErrorJSONResponse(logger, w, &vhttp.VerifyResponse{Error: addressSyntaxError})
			return
		}

		result, err := svc.HandleVerifyRequest(r.Context(), email, req.Alternatives)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"result": result,
				"error":  err,
			}).Error("Failed to verify e-mail address")

			w.WriteHeader(http.StatusInternalServerError)
			writeErrorJSONResponse(logger, w, &vhttp.VerifyResponse{Error: failedResponseError})
			return
		}

		response, err := json.Marshal(&vhttp.VerifyResponse{
			Valid:       result.Verdict.Bool(),
			Verdict:     result.Verdict.String(),
			Reason:      result.Reason,
			Diagnostics: result.Diagnostics,
			Alternative: result.Alternative,
			CacheHitTTL: result.CacheHitTTL.Seconds(),
		})

		if err != nil {
			logger.WithFields(logrus.Fields{
				"result": result,
				"error":  err,
			}).Error("Failed to marshal the response")

			w.WriteHeader(http.StatusInternalServerError)
			writeErrorJSONResponse(logger, w, &vhttp.VerifyResponse{Error: failedResponseError})
			return
		}

		logger.WithFields(logrus.Fields{
			"verdict":       result.Verdict.String(),
			"cache_ttl_sec": int(result.CacheHitTTL.Seconds()),
		}).Debug("Done performing verification")

		w.Header().Add("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(response)
	}
}

func NewAutoCompleteHandler(logger logrus.FieldLogger, svc *services.AutocompleteSvc, maxSuggestions uint64, maxBodySize int64) http.HandlerFunc {

	logger = logger.WithField("handler", "auto complete")
	return func(w http.ResponseWriter, r *http.Request) {
		var req vhttp.AutoCompleteRequest

		logger := logger.WithField(handlers.RequestID.String(), r.Context().Value(handlers.RequestID))

		defer deferClose(r.Body, logger)

		body, err := vhttp.GetBodyFromHTTPRequest(r, maxBodySize)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"error":          err,
				"content_length": r.ContentLength,
			}).Errorf("Error handling request %s", err)

			w.WriteHeader(http.StatusBadRequest)

			// err is expected to be safe to expose to the client
			writeErrorJSONResponse(logger, w, &vhttp.AutoCompleteResponse{Error: err.Error()})
			return
		}

		if err := json.Unmarshal(body, &req); err != nil {
			logger.WithError(err).Errorf("Error handling request body %s", err)

			w.WriteHeader(http.StatusBadRequest)
			writeErrorJSONResponse(logger, w, &vhttp.AutoCompleteResponse{Error: failedRequestError})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), time.Millisecond*500)
		defer cancel()

		if req.Domain == "" {
			logger.Debug("Empty argument")
			w.WriteHeader(http.StatusBadRequest)
			writeErrorJSONResponse(logger, w, &vhttp.AutoCompleteResponse{Error: domainLookupFailedError})
			return
		}

		result, err := svc.Autocomplete(ctx, req.Domain, maxSuggestions)
		if err != nil {
			logger.WithError(err).Warn("Error during lookup")

			if !errors.Is(err, ctx.Err()) {
				// When the context is canceled, we're not going to consider it a bad request
				w.WriteHeader(http.StatusBadRequest)
			}

			writeErrorJSONResponse(logger, w, &vhttp.AutoCompleteResponse{Error: err.Error()})
			return
		}

		response, err := json.Marshal(&vhttp.AutoCompleteResponse{
			Suggestions: result.Suggestions,
		})

		if err != nil {
			logger.WithFields(logrus.Fields{
				"response": response,
				"error":    err,
			}).Error("Failed to marshal the response")

			w.WriteHeader(http.StatusInternalServerError)
			writeErrorJSONResponse(logger, w, &vhttp.AutoCompleteResponse{Error: failedResponseError})
			return
		}

		logger.WithFields(logrus.Fields{
			"suggestions": len(result.Suggestions),
			"input":       req.Domain,
		}).Debugf("Autocomplete result")

		w.Header().Add("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(response)
	}
}

func NewHealthHandler(logger logrus.FieldLogger) http.HandlerFunc {

	logger = logger.WithField("handler", "health")
	return func(w http.ResponseWriter, r *http.Request) {

		logger := logger.WithField(handlers.RequestID.String(), r.Context().Value(handlers.RequestID))

		w.Header().Set("content-type", "text/plain")
		w.WriteHeader(http.StatusOK)

		_, err := w.Write([]byte("OK"))
		if err != nil {
			logger.WithError(err).Error("failed to write in health handler")
		}
	}
}

func writeErrorJSONResponse(logger logrus.FieldLogger, w http.ResponseWriter, response vhttp.Response) {
	response.PrepareResponse()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.WithError(err).Error("Failed writing error response")
	}
}

package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net"
	"net/http"
	"strconv"
	"strings"

	"listing_intake/models"
	"listing_intake/services"
)

const (
	actorHeader = "X-Actor-ID"
	maxJSONBody = 1 << 20
)

type handlers struct {
	deps RouterDependencies
}

type parseRequest struct {
	Message string `json:"message"`
	City    string `json:"city"`
}

type listingRequest struct {
	Message            string   `json:"message"`
	City               string   `json:"city"`
	State              string   `json:"state"`
	Model              string   `json:"model"`
	FuelType           string   `json:"fuelType"`
	OwnerType          string   `json:"ownerType"`
	RegistrationNumber string   `json:"regNo"`
	MediaURLs          []string `json:"mediaUrls"`
	ImageHashes        []string `json:"imageHashes"`
	RecaptchaToken     string   `json:"recaptchaToken"`
}

type chatRequest struct {
	ListingID      string `json:"listingId"`
	Message        string `json:"message"`
	RecaptchaToken string `json:"recaptchaToken"`
}

func (h *handlers) parseListing(w http.ResponseWriter, r *http.Request) {
	var req parseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	parsed, err := h.deps.Parse.Parse(req.Message, req.City)
	if err != nil {
		writeServiceError(w, r, err, "")
		return
	}
	respondJSON(w, http.StatusOK, parsed)
}

// createListing accepts either a JSON body or a multipart form with the
// JSON document in "payload" and an optional photo in "image".
func (h *handlers) createListing(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireActor(w, r)
	if !ok {
		return
	}

	var (
		req         listingRequest
		image       []byte
		contentType string
	)
	if isMultipart(r) {
		var err error
		image, contentType, err = h.readMultipart(w, r, &req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	} else if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.deps.Submissions.Submit(r.Context(), services.SubmissionRequest{
		ActorID:            actorID,
		RemoteIP:           clientIP(r),
		Token:              req.RecaptchaToken,
		Message:            req.Message,
		City:               req.City,
		State:              req.State,
		Model:              req.Model,
		FuelType:           models.FuelType(req.FuelType),
		OwnerType:          models.OwnerType(req.OwnerType),
		RegistrationNumber: req.RegistrationNumber,
		MediaURLs:          req.MediaURLs,
		ImageHashes:        req.ImageHashes,
		Image:              image,
		ImageContentType:   contentType,
	})
	if err != nil {
		writeServiceError(w, r, err, result.Outcome)
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

func (h *handlers) listListings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := models.ListingFilters{
		FuelType:     models.FuelType(q.Get("fuelType")),
		Transmission: models.Transmission(q.Get("transmission")),
		OwnerType:    models.OwnerType(q.Get("ownerType")),
		City:         q.Get("city"),
		State:        q.Get("state"),
		Sort:         models.ListingSort(q.Get("sort")),
	}

	var bad string
	readInt := func(name string, dst *int64) {
		if v := q.Get(name); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil && bad == "" {
				bad = name
			}
			*dst = n
		}
	}
	readInt("minPrice", &filters.MinPrice)
	readInt("maxPrice", &filters.MaxPrice)
	readInt("minKm", &filters.MinKm)
	readInt("maxKm", &filters.MaxKm)
	var limit int64
	readInt("limit", &limit)
	filters.Limit = int(limit)

	if bad != "" {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "must be an integer", Kind: services.KindValidation, Field: bad})
		return
	}

	listings, err := h.deps.Browse.List(r.Context(), filters)
	if err != nil {
		writeServiceError(w, r, err, "")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"listings": listings})
}

// ocrCheck takes the photo either as the multipart field "image" or as the
// raw request body.
func (h *handlers) ocrCheck(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireActor(w, r)
	if !ok {
		return
	}

	var (
		image []byte
		err   error
	)
	if isMultipart(r) {
		image, _, err = h.readImageField(w, r)
	} else {
		image, err = io.ReadAll(http.MaxBytesReader(w, r.Body, h.deps.MaxImageBytes))
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.deps.OCRCheck.Check(r.Context(), actorID, image)
	if err != nil {
		writeServiceError(w, r, err, "")
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (h *handlers) initiateChat(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	chat, err := h.deps.Chat.Initiate(r.Context(), services.ChatRequest{
		ActorID:   actorID,
		RemoteIP:  clientIP(r),
		Token:     req.RecaptchaToken,
		ListingID: req.ListingID,
		Message:   req.Message,
	})
	if err != nil {
		writeServiceError(w, r, err, "")
		return
	}
	respondJSON(w, http.StatusCreated, chat)
}

func (h *handlers) readMultipart(w http.ResponseWriter, r *http.Request, req *listingRequest) ([]byte, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.deps.MaxImageBytes+maxJSONBody)
	if err := r.ParseMultipartForm(h.deps.MaxImageBytes); err != nil {
		return nil, "", errors.New("invalid multipart form")
	}
	if err := json.Unmarshal([]byte(r.FormValue("payload")), req); err != nil {
		return nil, "", errors.New("invalid payload")
	}
	image, contentType, err := h.readImageField(w, r)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, "", nil
	}
	return image, contentType, err
}

func (h *handlers) readImageField(w http.ResponseWriter, r *http.Request) ([]byte, string, error) {
	if r.MultipartForm == nil {
		r.Body = http.MaxBytesReader(w, r.Body, h.deps.MaxImageBytes+maxJSONBody)
		if err := r.ParseMultipartForm(h.deps.MaxImageBytes); err != nil {
			return nil, "", errors.New("invalid multipart form")
		}
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		return nil, "", err
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.deps.MaxImageBytes+1))
	if err != nil {
		return nil, "", errors.New("could not read image")
	}
	if int64(len(data)) > h.deps.MaxImageBytes {
		return nil, "", errors.New("image too large")
	}
	return data, header.Header.Get("Content-Type"), nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	return dec.Decode(v)
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

// requireActor reads the authenticated dealer id set by the upstream auth
// proxy.
func requireActor(w http.ResponseWriter, r *http.Request) (string, bool) {
	actorID := strings.TrimSpace(r.Header.Get(actorHeader))
	if actorID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return "", false
	}
	return actorID, true
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

package thumbnails

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"

	"github.com/johnrirwin/localtv/internal/memstore"
	"github.com/johnrirwin/localtv/internal/models"
	"github.com/johnrirwin/localtv/internal/testutil"
)

type fakeModerationAPI struct {
	labels []types.ModerationLabel
	err    error
	calls  int
}

func (f *fakeModerationAPI) DetectModerationLabels(_ context.Context, params *rekognition.DetectModerationLabelsInput, _ ...func(*rekognition.Options)) (*rekognition.DetectModerationLabelsOutput, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &rekognition.DetectModerationLabelsOutput{ModerationLabels: f.labels}, nil
}

func newTestVideo(t *testing.T, store *memstore.Store, thumbURL string) *models.Video {
	t.Helper()
	v := &models.Video{
		SiteID:       1,
		Title:        "clip",
		FileURL:      "http://videos.example/clip.mp4",
		Status:       models.VideoStatusActive,
		SubmittedAt:  time.Now(),
		ThumbnailURL: thumbURL,
	}
	if err := store.CreateVideo(context.Background(), v); err != nil {
		t.Fatalf("CreateVideo() error = %v", err)
	}
	return v
}

func imageServer(t *testing.T, body []byte, status int) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write(body)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestProcessVideoStoresThumbnail(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	files := testutil.NewRecordingStorage()
	server := imageServer(t, testutil.JPEG(t, 640, 360), http.StatusOK)
	video := newTestVideo(t, store, server.URL+"/thumb.jpg")

	p := NewProcessor(store, NewPipeline(files, nil), fastDownloader(), nil, nil)
	if err := p.ProcessVideo(ctx, testSettings(), video.ID); err != nil {
		t.Fatalf("ProcessVideo() error = %v", err)
	}

	got, err := store.GetVideo(ctx, video.ID)
	if err != nil {
		t.Fatalf("GetVideo() error = %v", err)
	}
	if !got.HasThumbnail || got.ThumbnailExtension != "jpeg" {
		t.Errorf("thumbnail = (%v, %q), want (true, jpeg)", got.HasThumbnail, got.ThumbnailExtension)
	}
	if files.Len() != 1+len(models.DefaultThumbnailSizes) {
		t.Errorf("stored %d files, want %d", files.Len(), 1+len(models.DefaultThumbnailSizes))
	}
}

func TestProcessVideoClearsMissingThumbnailURL(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	server := imageServer(t, nil, http.StatusNotFound)
	video := newTestVideo(t, store, server.URL+"/gone.jpg")

	p := NewProcessor(store, NewPipeline(testutil.NewRecordingStorage(), nil), fastDownloader(), nil, nil)
	err := p.ProcessVideo(ctx, testSettings(), video.ID)
	if !errors.Is(err, ErrInvalidThumbnailURL) {
		t.Fatalf("ProcessVideo() error = %v, want ErrInvalidThumbnailURL", err)
	}
	if !IsPermanent(err) {
		t.Error("IsPermanent() = false for invalid url")
	}

	got, _ := store.GetVideo(ctx, video.ID)
	if got.ThumbnailURL != "" || got.HasThumbnail {
		t.Errorf("thumbnail = (%q, %v), want cleared", got.ThumbnailURL, got.HasThumbnail)
	}
}

func TestProcessVideoMalformedImage(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	server := imageServer(t, []byte("<html>oops</html>"), http.StatusOK)
	video := newTestVideo(t, store, server.URL+"/thumb.jpg")

	p := NewProcessor(store, NewPipeline(testutil.NewRecordingStorage(), nil), fastDownloader(), nil, nil)
	err := p.ProcessVideo(ctx, testSettings(), video.ID)

	var decodeErr *ImageDecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("ProcessVideo() error = %v, want *ImageDecodeError", err)
	}
	got, err := store.GetVideo(ctx, video.ID)
	if err != nil {
		t.Fatalf("video not retrievable after bad thumbnail: %v", err)
	}
	if got.HasThumbnail {
		t.Error("HasThumbnail = true for malformed image")
	}
	if got.ThumbnailURL == "" {
		t.Error("thumbnail url cleared for a decode failure")
	}
}

func TestProcessVideoWithoutThumbnailURL(t *testing.T) {
	store := memstore.New()
	video := newTestVideo(t, store, "")

	p := NewProcessor(store, NewPipeline(testutil.NewRecordingStorage(), nil), fastDownloader(), nil, nil)
	if err := p.ProcessVideo(context.Background(), testSettings(), video.ID); err != nil {
		t.Fatalf("ProcessVideo() error = %v", err)
	}
}

func TestProcessDataRejectedByModerator(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	files := testutil.NewRecordingStorage()
	video := newTestVideo(t, store, "")
	api := &fakeModerationAPI{labels: []types.ModerationLabel{
		{Name: aws.String("Explicit Nudity"), Confidence: aws.Float32(97)},
	}}
	moderator := &RekognitionModerator{client: api, minConfidence: 80}

	p := NewProcessor(store, NewPipeline(files, nil), fastDownloader(), moderator, nil)
	err := p.ProcessData(ctx, testSettings(), video.ID, testutil.PNG(t, 8, 8))

	if !errors.Is(err, ErrThumbnailRejected) {
		t.Fatalf("ProcessData() error = %v, want ErrThumbnailRejected", err)
	}
	if files.Len() != 0 {
		t.Errorf("stored %d files for rejected image, want 0", files.Len())
	}
	got, _ := store.GetVideo(ctx, video.ID)
	if got.HasThumbnail {
		t.Error("HasThumbnail = true for rejected image")
	}
}

func TestRekognitionModerator(t *testing.T) {
	tests := []struct {
		name       string
		labels     []types.ModerationLabel
		apiErr     error
		wantOK     bool
		wantLabels int
		wantErr    bool
	}{
		{name: "clean", wantOK: true},
		{
			name:   "below threshold",
			labels: []types.ModerationLabel{{Name: aws.String("Suggestive"), Confidence: aws.Float32(55)}},
			wantOK: true,
		},
		{
			name: "flagged",
			labels: []types.ModerationLabel{
				{Name: aws.String("Violence"), Confidence: aws.Float32(91)},
				{Name: aws.String("Suggestive"), Confidence: aws.Float32(40)},
			},
			wantLabels: 1,
		},
		{name: "api error", apiErr: errors.New("throttled"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &RekognitionModerator{
				client:        &fakeModerationAPI{labels: tt.labels, err: tt.apiErr},
				minConfidence: 80,
			}
			ok, labels, err := m.Check(context.Background(), testutil.JPEG(t, 8, 8))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Check() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if ok != tt.wantOK || len(labels) != tt.wantLabels {
				t.Errorf("Check() = (%v, %v), want (%v, %d labels)", ok, labels, tt.wantOK, tt.wantLabels)
			}
		})
	}
}

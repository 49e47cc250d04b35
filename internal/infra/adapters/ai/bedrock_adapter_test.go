package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"mediaforge/internal/domain"
	"mediaforge/internal/domain/ports/adapter"
)

type fakeInvoker struct {
	in   *bedrockruntime.InvokeModelInput
	body []byte
}

func (f *fakeInvoker) InvokeModel(ctx context.Context, in *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.in = in
	return &bedrockruntime.InvokeModelOutput{Body: f.body}, nil
}

func TestBedrockBackend_Generate(t *testing.T) {
	img := base64.StdEncoding.EncodeToString([]byte("TITAN"))
	inv := &fakeInvoker{body: []byte(`{"images":["` + img + `"],"error":null}`)}
	b := &BedrockBackend{client: inv, model: "amazon.titan-image-generator-v2:0"}

	res, err := b.Generate(context.Background(), adapter.ImageRequest{Prompt: "a boat", NegativePrompt: "blurry", Width: 1024, Height: 1024})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if string(res.Data) != "TITAN" || res.Model != "amazon.titan-image-generator-v2:0" {
		t.Fatalf("result = %+v", res)
	}
	var sent titanRequest
	if err := json.Unmarshal(inv.in.Body, &sent); err != nil {
		t.Fatalf("request body: %v", err)
	}
	if sent.TaskType != "TEXT_IMAGE" || sent.TextToImageParams.NegativeText != "blurry" || sent.Config.NumberOfImages != 1 {
		t.Fatalf("request = %+v", sent)
	}
	if *inv.in.ModelId != "amazon.titan-image-generator-v2:0" {
		t.Errorf("model id = %s", *inv.in.ModelId)
	}
}

func TestBedrockBackend_ModelError(t *testing.T) {
	inv := &fakeInvoker{body: []byte(`{"images":[],"error":"content filtered"}`)}
	b := &BedrockBackend{client: inv, model: "m"}
	if _, err := b.Generate(context.Background(), adapter.ImageRequest{Prompt: "x"}); !errors.Is(err, domain.ErrBackend) {
		t.Fatalf("want ErrBackend, got %v", err)
	}
}

func TestAspectRatio(t *testing.T) {
	cases := map[[2]int]string{
		{1024, 1024}: "1:1",
		{2048, 1024}: "16:9",
		{1536, 1024}: "4:3",
		{1024, 2048}: "9:16",
		{1024, 1536}: "3:4",
		{0, 0}:       "1:1",
	}
	for dims, want := range cases {
		if got := aspectRatio(dims[0], dims[1]); got != want {
			t.Errorf("aspectRatio(%d,%d) = %s, want %s", dims[0], dims[1], got, want)
		}
	}
}

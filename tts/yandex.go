package tts

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/metadata"

	tts "github.com/yandex-cloud/go-genproto/yandex/cloud/ai/tts/v3"
)

const (
	YandexTTSEndpoint = "tts.api.cloud.yandex.net:443"
)

type YandexConfig struct {
	// ApiKey takes precedence over IamToken when both are set.
	ApiKey   string
	IamToken string
	FolderID string
}

type YandexTTSClient struct {
	client   tts.SynthesizerClient
	conn     *grpc.ClientConn
	auth     string
	folderID string
}

// Ensure YandexTTSClient implements Synthesizer interface
var _ Synthesizer = (*YandexTTSClient)(nil)

func GetDefaultSynthesisOptions() SynthesisOptions {
	return SynthesisOptions{
		Voice:  "john",
		Speed:  1.0,
		Volume: 0.0,
		Model:  "general",
		Format: FormatMP3,
	}
}

func NewYandexTTSClient(config YandexConfig) (*YandexTTSClient, error) {
	creds := credentials.NewTLS(&tls.Config{})

	conn, err := grpc.NewClient(YandexTTSEndpoint, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to TTS service: %w", err)
	}

	auth := "Bearer " + config.IamToken
	if config.ApiKey != "" {
		auth = "Api-Key " + config.ApiKey
	}

	return &YandexTTSClient{
		client:   tts.NewSynthesizerClient(conn),
		conn:     conn,
		auth:     auth,
		folderID: config.FolderID,
	}, nil
}

// Synthesize collects the streamed audio chunks of one utterance.
func (c *YandexTTSClient) Synthesize(ctx context.Context, text string, options SynthesisOptions) ([]byte, error) {
	ctx = metadata.AppendToOutgoingContext(ctx,
		"authorization", c.auth,
		"x-folder-id", c.folderID,
	)

	stream, err := c.client.UtteranceSynthesis(ctx, buildRequest(text, options))
	if err != nil {
		return nil, fmt.Errorf("failed to start synthesis: %w", err)
	}

	var out bytes.Buffer
	for {
		resp, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to receive audio data: %w", err)
		}
		if chunk := resp.GetAudioChunk(); chunk != nil {
			out.Write(chunk.GetData())
		}
	}

	if out.Len() == 0 {
		return nil, fmt.Errorf("synthesis returned no audio")
	}
	return out.Bytes(), nil
}

func buildRequest(text string, options SynthesisOptions) *tts.UtteranceSynthesisRequest {
	req := &tts.UtteranceSynthesisRequest{}
	req.SetModel(options.Model)
	req.SetText(text)

	voiceHint := &tts.Hints{}
	voiceHint.SetVoice(options.Voice)

	speedHint := &tts.Hints{}
	speedHint.SetSpeed(options.Speed)

	volumeHint := &tts.Hints{}
	volumeHint.SetVolume(options.Volume)

	req.SetHints([]*tts.Hints{voiceHint, speedHint, volumeHint})

	containerAudio := &tts.ContainerAudio{}
	switch options.Format {
	case FormatWAV:
		containerAudio.SetContainerAudioType(tts.ContainerAudio_WAV)
	default:
		containerAudio.SetContainerAudioType(tts.ContainerAudio_MP3)
	}

	audioSpec := &tts.AudioFormatOptions{}
	audioSpec.SetContainerAudio(containerAudio)
	req.SetOutputAudioSpec(audioSpec)

	req.SetLoudnessNormalizationType(tts.UtteranceSynthesisRequest_LUFS)

	return req
}

func (c *YandexTTSClient) Close() error {
	return c.conn.Close()
}

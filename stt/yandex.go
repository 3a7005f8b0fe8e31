package stt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/metadata"

	speechkit "github.com/yandex-cloud/go-genproto/yandex/cloud/ai/stt/v3"
)

const (
	YandexSTTEndpoint = "stt.api.cloud.yandex.net:443"

	// chunkSize is the number of PCM bytes sent per streaming request
	// (128 ms of 16 kHz audio).
	chunkSize = 4096
)

type YandexSTTClient struct {
	client   speechkit.RecognizerClient
	conn     *grpc.ClientConn
	iamToken string
	folderID string
	language string
}

var _ Recognizer = (*YandexSTTClient)(nil)

type YandexConfig struct {
	IamToken string
	FolderID string
	Language string
}

func NewYandexSTTClient(config YandexConfig) (*YandexSTTClient, error) {
	conn, err := grpc.NewClient(YandexSTTEndpoint, grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{})))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Yandex STT: %w", err)
	}

	return newYandexSTTClient(speechkit.NewRecognizerClient(conn), conn, config), nil
}

func newYandexSTTClient(client speechkit.RecognizerClient, conn *grpc.ClientConn, config YandexConfig) *YandexSTTClient {
	return &YandexSTTClient{
		client:   client,
		conn:     conn,
		iamToken: config.IamToken,
		folderID: config.FolderID,
		language: config.Language,
	}
}

func (s *YandexSTTClient) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// Recognize streams the utterance, half-closes the stream and joins the final
// results the service returns before EOF.
func (s *YandexSTTClient) Recognize(ctx context.Context, pcm []byte, sampleRate int64) (string, error) {
	if len(pcm) == 0 {
		return "", errors.New("audio data is empty")
	}

	md := metadata.Pairs(
		"authorization", "Bearer "+s.iamToken,
		"x-folder-id", s.folderID,
	)
	ctx = metadata.NewOutgoingContext(ctx, md)

	stream, err := s.client.RecognizeStreaming(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to create streaming client: %w", err)
	}

	if err := stream.Send(s.sessionOptions(sampleRate)); err != nil {
		return "", fmt.Errorf("failed to send session options: %w", err)
	}

	for off := 0; off < len(pcm); off += chunkSize {
		end := min(off+chunkSize, len(pcm))
		req := &speechkit.StreamingRequest{
			Event: &speechkit.StreamingRequest_Chunk{
				Chunk: &speechkit.AudioChunk{Data: pcm[off:end]},
			},
		}
		if err := stream.Send(req); err != nil {
			return "", fmt.Errorf("failed to send audio chunk: %w", err)
		}
	}

	if err := stream.CloseSend(); err != nil {
		return "", fmt.Errorf("failed to close send: %w", err)
	}

	var parts []string
	for {
		resp, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to receive response: %w", err)
		}

		if final := resp.GetFinal(); final != nil {
			alternatives := final.GetAlternatives()
			if len(alternatives) > 0 {
				if text := strings.TrimSpace(alternatives[0].GetText()); text != "" {
					parts = append(parts, text)
				}
			}
		}
	}

	return strings.Join(parts, " "), nil
}

func (s *YandexSTTClient) sessionOptions(sampleRate int64) *speechkit.StreamingRequest {
	return &speechkit.StreamingRequest{
		Event: &speechkit.StreamingRequest_SessionOptions{
			SessionOptions: &speechkit.StreamingOptions{
				RecognitionModel: &speechkit.RecognitionModelOptions{
					AudioFormat: &speechkit.AudioFormatOptions{
						AudioFormat: &speechkit.AudioFormatOptions_RawAudio{
							RawAudio: &speechkit.RawAudio{
								AudioEncoding:     speechkit.RawAudio_LINEAR16_PCM,
								SampleRateHertz:   sampleRate,
								AudioChannelCount: 1,
							},
						},
					},
					TextNormalization: &speechkit.TextNormalizationOptions{
						TextNormalization: speechkit.TextNormalizationOptions_TEXT_NORMALIZATION_ENABLED,
					},
					LanguageRestriction: &speechkit.LanguageRestrictionOptions{
						RestrictionType: speechkit.LanguageRestrictionOptions_WHITELIST,
						LanguageCode:    []string{s.language},
					},
					AudioProcessingType: speechkit.RecognitionModelOptions_REAL_TIME,
				},
			},
		},
	}
}

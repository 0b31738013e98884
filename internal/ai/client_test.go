package ai

import (
	"context"
	"testing"
)

func TestNewClient(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		config  *ClientConfig
		wantErr bool
	}{
		{"nil config", nil, true},
		{"unknown provider", &ClientConfig{Provider: "oracle"}, true},
		{"stub provider", &ClientConfig{Provider: ProviderStub, Dim: 16}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewClient(ctx, tt.config)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewClient() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && c == nil {
				t.Error("NewClient() returned nil client")
			}
		})
	}
}

func TestStubClientDeterministic(t *testing.T) {
	s := NewStubClient(16)
	ctx := context.Background()

	a, err := s.EmbedDocument(ctx, "hello world")
	if err != nil {
		t.Fatalf("EmbedDocument() error = %v", err)
	}
	b, _ := s.EmbedDocument(ctx, "hello world")
	if len(a) != 16 {
		t.Fatalf("len = %d, want 16", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("identical inputs produced different vectors")
		}
	}

	c, _ := s.EmbedDocument(ctx, "different text")
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different inputs produced identical vectors")
	}
}

func TestStubClientDocumentAndQuerySpacesDiffer(t *testing.T) {
	s := NewStubClient(16)
	ctx := context.Background()

	d, _ := s.EmbedDocument(ctx, "same text")
	q, _ := s.EmbedQuery(ctx, "same text")
	same := true
	for i := range d {
		if d[i] != q[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("document and query embeddings should use different salts")
	}
}

func TestStubClientDefaultsDim(t *testing.T) {
	s := NewStubClient(0)
	if s.Dim() != 8 {
		t.Errorf("Dim() = %d, want 8", s.Dim())
	}
}

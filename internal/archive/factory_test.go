package archive

import (
	"context"
	"testing"

	"alertsync/internal/config"
)

func TestNewArchiveFromConfig(t *testing.T) {
	isolateAWSEnv(t)
	fsRoot := t.TempDir()

	tests := []struct {
		name     string
		cfg      config.ArchiveConfig
		wantErr  bool
		wantType string
	}{
		{
			name:     "memory archive",
			cfg:      config.ArchiveConfig{Type: "memory", Name: "mem"},
			wantType: "*archive.MemoryArchive",
		},
		{
			name:     "filesystem archive",
			cfg:      config.ArchiveConfig{Type: "filesystem", Name: "fs", FSArchiveRoot: fsRoot},
			wantType: "*archive.FileSystemArchive",
		},
		{
			name:    "filesystem archive without root",
			cfg:     config.ArchiveConfig{Type: "filesystem", Name: "fs"},
			wantErr: true,
		},
		{
			name: "s3 archive",
			cfg: config.ArchiveConfig{
				Type:              "s3",
				Name:              "s3",
				S3Bucket:          "bucket",
				S3Region:          "eu-west-1",
				S3AccessKeyID:     "id",
				S3SecretAccessKey: "secret",
			},
			wantType: "*archive.S3Archive",
		},
		{
			name:    "s3 archive without bucket",
			cfg:     config.ArchiveConfig{Type: "s3", Name: "s3", S3Region: "eu-west-1"},
			wantErr: true,
		},
		{
			name:    "unknown archive type",
			cfg:     config.ArchiveConfig{Type: "tape", Name: "tape"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewArchiveFromConfig(context.Background(), tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewArchiveFromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got.Name() != tt.cfg.Name {
				t.Errorf("Name() = %q, want %q", got.Name(), tt.cfg.Name)
			}
			if gotType := typeName(got); gotType != tt.wantType {
				t.Errorf("type = %s, want %s", gotType, tt.wantType)
			}
		})
	}
}

func typeName(a Archive) string {
	switch a.(type) {
	case *MemoryArchive:
		return "*archive.MemoryArchive"
	case *FileSystemArchive:
		return "*archive.FileSystemArchive"
	case *S3Archive:
		return "*archive.S3Archive"
	default:
		return "unknown"
	}
}

package datastore

import "testing"

func TestMySQLDSN(t *testing.T) {
	tests := []struct {
		name    string
		dsn     string
		want    string
		wantErr bool
	}{
		{
			name: "it forces parseTime on a plain DSN",
			dsn:  "user:pass@tcp(localhost:3306)/outbox",
			want: "user:pass@tcp(localhost:3306)/outbox?parseTime=true",
		},
		{
			name: "it keeps existing parameters",
			dsn:  "user:pass@tcp(localhost:3306)/outbox?charset=utf8mb4",
			want: "user:pass@tcp(localhost:3306)/outbox?parseTime=true&charset=utf8mb4",
		},
		{
			name: "it leaves parseTime on when already set",
			dsn:  "user:pass@tcp(localhost:3306)/outbox?parseTime=true",
			want: "user:pass@tcp(localhost:3306)/outbox?parseTime=true",
		},
		{
			name:    "it rejects a malformed DSN",
			dsn:     "no slash here",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MySQLDSN(tt.dsn)
			if (err != nil) != tt.wantErr {
				t.Errorf("MySQLDSN() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("MySQLDSN() got = %v, want %v", got, tt.want)
			}
		})
	}
}

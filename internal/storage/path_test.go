package storage

import "testing"

func TestBuildRawUploadPath(t *testing.T) {
	got, err := BuildRawUploadPath("user-1", "ds-42", "Sales Q1 (final).csv")
	if err != nil {
		t.Fatalf("BuildRawUploadPath() error = %v", err)
	}
	want := "user-1/ds-42/raw/Sales_Q1__final_.csv"
	if got != want {
		t.Fatalf("path = %q, want %q", got, want)
	}
}

func TestBuildRawUploadPathRejectsTraversal(t *testing.T) {
	if _, err := BuildRawUploadPath("../etc", "ds-1", "a.csv"); err == nil {
		t.Fatal("expected invalid user id error")
	}
	if _, err := BuildRawUploadPath("user-1", "ds/1", "a.csv"); err == nil {
		t.Fatal("expected invalid dataset id error")
	}
}

func TestBuildRawUploadPathStripsDirectories(t *testing.T) {
	got, err := BuildRawUploadPath("user-1", "ds-1", "../../secrets.csv")
	if err != nil {
		t.Fatalf("BuildRawUploadPath() error = %v", err)
	}
	if got != "user-1/ds-1/raw/secrets.csv" {
		t.Fatalf("path = %q", got)
	}
}

func TestBuildDatasetPath(t *testing.T) {
	got, err := BuildDatasetPath("user-1", "ds-42")
	if err != nil {
		t.Fatalf("BuildDatasetPath() error = %v", err)
	}
	if got != "user-1/ds-42/data.parquet" {
		t.Fatalf("path = %q", got)
	}
}

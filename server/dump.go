package server

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"net/http"
	"time"

	"github.com/draganm/bolted"
)

const backupCompleteTrailer = "X-Inviteflow-Backup-Complete"

// backup streams the state db, profiles and sessions of the embedded
// stores, as a gzipped tar with a single "state" entry.
func (s *Server) backup(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/gzip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="inviteflow-%s.tar.gz"`, time.Now().UTC().Format("20060102T150405Z")))
	w.Header().Set("Trailer", backupCompleteTrailer)

	gzw, err := gzip.NewWriterLevel(w, gzip.BestSpeed)
	if err != nil {
		err = fmt.Errorf("could not create gzip writer: %w", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		s.log.Error(err, "could not backup")
		return
	}

	tw := tar.NewWriter(gzw)

	err = bolted.SugaredRead(s.db, func(tx bolted.SugaredReadTx) error {
		err := tw.WriteHeader(&tar.Header{
			Name:     "state",
			Typeflag: tar.TypeReg,
			Mode:     0600,
			Size:     tx.FileSize(),
			ModTime:  time.Now(),
		})
		if err != nil {
			return fmt.Errorf("could not write backup header: %w", err)
		}

		tx.Dump(tw)
		return nil
	})
	if err != nil {
		s.log.Error(err, "could not write backup")
		return
	}

	err = tw.Close()
	if err != nil {
		s.log.Error(err, "could not close backup tar writer")
		return
	}

	err = gzw.Close()
	if err != nil {
		s.log.Error(err, "could not close backup gzip writer")
		return
	}

	w.Header().Set(backupCompleteTrailer, "true")
	s.log.Info("backup written")
}

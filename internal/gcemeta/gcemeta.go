package gcemeta

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/broadinstitute/install-gcs-connector/internal/logger"
)

const (
	// dataprocAttributePath names the metadata attribute present on
	// Dataproc VMs.
	dataprocAttributePath = "/0.1/meta-data/attributes/dataproc-bucket"

	// dataprocPayloadPrefix is the expected start of the attribute value.
	dataprocPayloadPrefix = "dataproc"
)

// IsDataprocVM reports whether this host is a Dataproc VM by querying the
// metadata service at baseURL. Every failure mode (timeout, connection
// refused, non-2xx status, wrong payload prefix) means "not a Dataproc VM";
// nothing is ever propagated.
func IsDataprocVM(ctx context.Context, baseURL string, timeout time.Duration) bool {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	attributeURL := strings.TrimRight(baseURL, "/") + dataprocAttributePath

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, attributeURL, http.NoBody)
	if err != nil {
		return false
	}

	response, err := http.DefaultClient.Do(req)
	if err != nil {
		logger.Debugf(ctx, "Metadata probe failed: %v", err)
		return false
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode != http.StatusOK {
		return false
	}

	payload, err := io.ReadAll(response.Body)
	if err != nil {
		return false
	}

	return strings.HasPrefix(string(payload), dataprocPayloadPrefix)
}

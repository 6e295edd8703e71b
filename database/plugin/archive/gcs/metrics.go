// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gcs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type archiveMetrics struct {
	objectsWritten prometheus.Counter
	objectsRead    prometheus.Counter
	bytesWritten   prometheus.Counter
}

func (d *ArchiveStoreGCS) registerArchiveMetrics() {
	promautoFactory := promauto.With(d.promRegistry)
	d.metrics = &archiveMetrics{
		objectsWritten: promautoFactory.NewCounter(prometheus.CounterOpts{
			Name: "database_archive_objects_written_total",
			Help: "Total objects written to the archive",
		}),
		objectsRead: promautoFactory.NewCounter(prometheus.CounterOpts{
			Name: "database_archive_objects_read_total",
			Help: "Total objects read from the archive",
		}),
		bytesWritten: promautoFactory.NewCounter(prometheus.CounterOpts{
			Name: "database_archive_bytes_written_total",
			Help: "Total bytes written to the archive",
		}),
	}
}

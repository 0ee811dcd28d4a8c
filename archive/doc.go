// Copyright 2025 Poiesic Systems
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


// Package archive provides safe, read-only, one-shot extraction of
// user-supplied archives for ingestion.
//
// Every archive is inspected before a single byte is extracted: size and
// member-count ceilings, a decompression-ratio bound against zip bombs,
// member path checks against zip-slip traversal, and rejection of
// symlink/hardlink/device members. Validated archives are extracted into
// uniquely named temporary workspaces that are removed on every exit path.
// Nested archives are descended into depth-first up to a configured bound;
// exceeding it records an error without failing the parent job.
package archive

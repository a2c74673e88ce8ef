package stream

import "strings"

// AllChunks drains the stream into the ordered list of chunks it produced,
// up to and including the End chunk. It returns the first error encountered
// instead, discarding nothing silently. Like the stream itself it is
// single-pass: once drained (or cancelled through the same context) the
// stream yields nothing more.
func (s *TokenStream) AllChunks() ([]Chunk, error) {
	defer s.Close()

	var chunks []Chunk
	for s.Next() {
		chunks = append(chunks, s.Current())
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return chunks, nil
}

// AllText drains the stream and concatenates its Token chunks into the full
// assistant message. Tool call chunks are skipped; errors surface exactly as
// with AllChunks.
func (s *TokenStream) AllText() (string, error) {
	defer s.Close()

	var sb strings.Builder
	for s.Next() {
		if c := s.Current(); c.Kind == KindToken {
			sb.WriteString(c.Text)
		}
	}
	if err := s.Err(); err != nil {
		return "", err
	}
	return sb.String(), nil
}

package messaging

import (
	"context"
	"fmt"

	"github.com/hashgraph/guardian-sub011/internal/doc"
	"github.com/hashgraph/guardian-sub011/internal/dryrun"
	"github.com/hashgraph/guardian-sub011/internal/queryir"
	"github.com/hashgraph/guardian-sub011/internal/store"
)

// File and transaction payload fields.
const (
	FieldDocumentURL = "documentURL"
	FieldDigest      = store.FileDigestField
	FieldSize        = "size"
	FieldTxType      = "type"
)

// FileURLScheme prefixes the URL of virtual files that were saved without
// one.
const FileURLScheme = "dryrun://"

// RecordTransaction stores a virtual ledger transaction of txType paid by
// operatorID. Transactions are never system records.
func (e *Emulator) RecordTransaction(ctx context.Context, run dryrun.Run, txType, operatorID string) (doc.Object, error) {
	sess, err := e.session(run.WithSystemMode(false))
	if err != nil {
		return nil, err
	}
	item, err := sess.Create(dryrun.VirtualTransaction, doc.NewObject(
		doc.O(FieldTxType, doc.String(txType)),
		doc.O(FieldAccountID, doc.String(operatorID)),
		doc.O(FieldCreateDate, e.now()),
	))
	if err != nil {
		return nil, err
	}
	saved, err := sess.Save(ctx, dryrun.VirtualTransaction, item)
	if err != nil {
		return nil, fmt.Errorf("record transaction %s: %w", txType, err)
	}
	return saved, nil
}

// File is a virtual file record.
type File struct {
	ID     string `json:"id"`
	Digest string `json:"digest"`
	Size   int64  `json:"size"`
	URL    string `json:"documentURL"`
}

// SaveFile stores content as a side file of the run and records it with
// its size and URL. An empty url becomes FileURLScheme plus the content
// digest. Files are never system records.
func (e *Emulator) SaveFile(ctx context.Context, run dryrun.Run, content []byte, url string) (File, error) {
	sess, err := e.session(run.WithSystemMode(false))
	if err != nil {
		return File{}, err
	}
	digest, err := e.router.Store().PutRunFile(ctx, run.ID(), content)
	if err != nil {
		return File{}, fmt.Errorf("save file: %w", err)
	}
	if url == "" {
		url = FileURLScheme + digest
	}

	item, err := sess.Create(dryrun.VirtualFile, doc.NewObject(
		doc.O(FieldDocument, doc.NewObject(doc.O(FieldSize, doc.Int(len(content))))),
		doc.O(FieldDocumentURL, doc.String(url)),
		doc.O(FieldDigest, doc.String(digest)),
		doc.O(FieldCreateDate, e.now()),
	))
	if err != nil {
		return File{}, err
	}
	saved, err := sess.Save(ctx, dryrun.VirtualFile, item)
	if err != nil {
		return File{}, fmt.Errorf("save file %s: %w", digest, err)
	}
	e.logger.Debug("saved virtual file", "run_id", run.ID(), "digest", digest, "size", len(content))
	return File{
		ID:     saved.GetString(queryir.FieldID),
		Digest: digest,
		Size:   int64(len(content)),
		URL:    url,
	}, nil
}

// ReadFile returns the content of a file saved in the run.
func (e *Emulator) ReadFile(ctx context.Context, run dryrun.Run, digest string) ([]byte, bool, error) {
	if _, err := e.session(run); err != nil {
		return nil, false, err
	}
	return e.router.Store().GetRunFile(ctx, run.ID(), digest)
}

// DocumentKind selects a family of virtual documents.
type DocumentKind string

const (
	KindArtifacts    DocumentKind = "artifacts"
	KindTransactions DocumentKind = "transactions"
	KindIPFS         DocumentKind = "ipfs"
)

// ParseDocumentKind validates a kind name.
func ParseDocumentKind(s string) (DocumentKind, error) {
	switch k := DocumentKind(s); k {
	case KindArtifacts, KindTransactions, KindIPFS:
		return k, nil
	default:
		return "", fmt.Errorf("unknown document kind %q (want artifacts, transactions or ipfs)", s)
	}
}

var artifactTags = []dryrun.EntityType{
	dryrun.VcDocument,
	dryrun.VpDocument,
	dryrun.DidDocument,
	dryrun.ApprovalDocument,
}

// filter returns the entity tag predicate and the visible fields of k.
// Artifacts show every field.
func (k DocumentKind) filter() (queryir.Predicate, []string, error) {
	switch k {
	case KindArtifacts:
		tags := make([]doc.Value, len(artifactTags))
		for i, e := range artifactTags {
			tags[i] = doc.String(dryrun.MustTagFor(e))
		}
		return queryir.In{Field: queryir.FieldEntityTag, Values: tags}, nil, nil
	case KindTransactions:
		return queryir.Eq(queryir.FieldEntityTag, doc.String(dryrun.TagTransactions)),
			[]string{queryir.FieldID, FieldCreateDate, FieldTxType, FieldAccountID}, nil
	case KindIPFS:
		return queryir.Eq(queryir.FieldEntityTag, doc.String(dryrun.TagFiles)),
			[]string{queryir.FieldID, FieldCreateDate, FieldDocument, FieldDocumentURL}, nil
	default:
		return nil, nil, fmt.Errorf("unknown document kind %q", string(k))
	}
}

// Page selects a page of results. A zero Size returns everything.
type Page struct {
	Index int
	Size  int
}

// ListDocuments returns one page of the run's documents of kind k, newest
// first when paged, and the total count.
func (e *Emulator) ListDocuments(ctx context.Context, run dryrun.Run, k DocumentKind, page Page) ([]doc.Object, int, error) {
	if _, err := e.session(run); err != nil {
		return nil, 0, err
	}
	tagFilter, fields, err := k.filter()
	if err != nil {
		return nil, 0, err
	}

	opts := queryir.Options{Fields: fields}
	if page.Size > 0 && page.Index >= 0 {
		opts.OrderBy = []queryir.SortKey{{Field: FieldCreateDate, Desc: true}}
		opts.Limit = page.Size
		opts.Offset = page.Index * page.Size
	}

	filter := queryir.AllOf(queryir.Eq(queryir.FieldRunID, doc.String(run.ID())), tagFilter)
	recs, total, err := e.router.Store().FindAndCount(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("list %s: %w", k, err)
	}
	out := make([]doc.Object, len(recs))
	for i, rec := range recs {
		obj := rec.Document()
		if fields != nil {
			obj = obj.Project(fields)
		}
		out[i] = obj
	}
	return out, total, nil
}

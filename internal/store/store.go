package store

// Store defines the database interface.
type Store interface {
	Migrate() error

	// User operations. Creation inserts the user and its personal
	// namespace in one transaction.
	CreateUserWithNamespace(user *User, ns *Namespace) error
	GetUser(id string) (*User, error)
	GetUserByName(name string) (*User, error)
	ListUsers(limit, offset int) ([]User, error)
	CountUsers() (int, error)
	DeleteUser(id string) error

	// Namespace operations
	CreateNamespace(ns *Namespace) error
	GetNamespace(id string) (*Namespace, error)
	GetNamespaceByName(name string) (*Namespace, error)
	ListNamespaces(limit, offset int) ([]Namespace, error)
	CountNamespaces() (int, error)
	ListAccessibleNamespaces(userID string, limit, offset int) ([]Namespace, int, error)
	DeleteNamespace(id string) error

	// Token operations
	GenerateToken(userID *string, description *string) (string, *Token, error)
	GetTokenByLookup(lookup string) (*Token, error)
	GetTokenByID(id string) (*Token, error)
	ListTokens(limit, offset int) ([]Token, error)
	CountTokens() (int, error)
	ListUserTokens(userID string) ([]Token, error)
	RevokeToken(id string) error
	TouchToken(id string)
	HasAdminToken() (bool, error)

	// Repo operations. Creation enforces repo_limit and name
	// uniqueness in one immediate transaction.
	CreateRepo(repo *Repo) error
	GetRepoByID(id string) (*Repo, error)
	GetRepoByName(namespaceID, name string) (*Repo, error)
	ListRepos(namespaceID string, limit, offset int) ([]Repo, error)
	CountRepos(namespaceID string) (int, error)
	ListAccessibleRepos(userID string, limit, offset int) ([]Repo, int, error)
	ListAllRepoRefs() ([]RepoRef, error)
	UpdateRepo(repo *Repo, expectedVersion *int64) error
	SetRepoFolder(repoID string, folderID *string) error
	RecordRepoPush(id string, sizeBytes int64) error
	DeleteRepo(id string) error

	// Folder operations
	CreateFolder(folder *Folder) error
	GetFolderByID(id string) (*Folder, error)
	GetFolderChild(namespaceID string, parentID *string, name string) (*Folder, error)
	ListFolders(namespaceID string, limit, offset int) ([]Folder, error)
	CountFolders(namespaceID string) (int, error)
	UpdateFolder(folder *Folder) error
	DeleteFolder(id string) error

	// Tag operations
	CreateTag(tag *Tag) error
	GetTagByID(id string) (*Tag, error)
	GetTagByName(namespaceID, name string) (*Tag, error)
	ListTags(namespaceID string, limit, offset int) ([]Tag, error)
	CountTags(namespaceID string) (int, error)
	UpdateTag(tag *Tag) error
	DeleteTag(id string) error
	AddRepoTag(repoID, tagID string) error
	RemoveRepoTag(repoID, tagID string) error
	ListRepoTags(repoID string) ([]Tag, error)

	// Grant operations
	UpsertNamespaceGrant(grant *NamespaceGrant) error
	GetNamespaceGrant(userID, namespaceID string) (*NamespaceGrant, error)
	ListUserNamespaceGrants(userID string) ([]NamespaceGrant, error)
	DeleteNamespaceGrant(userID, namespaceID string) error
	UpsertRepoGrant(grant *RepoGrant) error
	GetRepoGrant(userID, repoID string) (*RepoGrant, error)
	ListRepoGrants(repoID string) ([]RepoGrant, error)
	DeleteRepoGrant(userID, repoID string) error

	// LFS object bookkeeping
	PutLFSObject(obj *LFSObject) error
	GetLFSObject(namespaceID, oid string) (*LFSObject, error)

	Close() error
}
